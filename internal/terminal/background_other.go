//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package terminal

// IsProcessBackground always returns false on this platform.
func IsProcessBackground(uintptr) bool {
	return false
}
