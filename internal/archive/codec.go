package archive

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/errors"
)

// NameCodec maps block hashes to entry names inside a content volume. Which
// encoding a volume uses is a setting of the producing application, so it is
// detected per volume.
type NameCodec interface {
	Name() string
	Encode(id backup.ID) string
	Decode(name string) (backup.ID, error)
}

type base64Codec struct {
	name string
	enc  *base64.Encoding
}

func (c base64Codec) Name() string { return c.name }

func (c base64Codec) Encode(id backup.ID) string { return c.enc.EncodeToString(id[:]) }

func (c base64Codec) Decode(name string) (backup.ID, error) {
	buf, err := c.enc.DecodeString(name)
	if err != nil {
		return backup.ID{}, errors.Wrapf(err, "entry name %q", name)
	}
	return backup.IDFromBytes(buf)
}

type hexCodec struct{}

func (hexCodec) Name() string { return "hex" }

func (hexCodec) Encode(id backup.ID) string { return hex.EncodeToString(id[:]) }

func (hexCodec) Decode(name string) (backup.ID, error) {
	return backup.ParseID(strings.ToLower(name))
}

// The supported entry name encodings.
var (
	Base64URL NameCodec = base64Codec{name: "base64url", enc: base64.URLEncoding}
	Base64Std NameCodec = base64Codec{name: "base64", enc: base64.StdEncoding}
	Hex       NameCodec = hexCodec{}
)

// ParseEncoding returns the codec for a user supplied encoding name, nil for
// "auto" or "".
func ParseEncoding(s string) (NameCodec, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return nil, nil
	case "base64", "base64url":
		return Base64URL, nil
	case "base64std":
		return Base64Std, nil
	case "hex":
		return Hex, nil
	default:
		return nil, fmt.Errorf("invalid entry name encoding %q, must be one of (auto|base64|hex)", s)
	}
}

// ErrNoBlockEntries is returned by DetectCodec if no entry name looks like
// an encoded hash.
var ErrNoBlockEntries = errors.New("no block entries found")

// DetectCodec inspects the entry names of a volume and returns the codec
// that decodes them. Names that cannot be hashes (such as "manifest") are
// ignored. A volume whose names are all 64 hex digits uses Hex, one whose
// names contain '+' or '/' uses standard base64, anything else URL-safe
// base64.
func DetectCodec(names []string) (NameCodec, error) {
	var sawHex, sawBase64, sawStd bool

	for _, name := range names {
		switch {
		case isHexName(name):
			sawHex = true
		case isBase64Name(name):
			sawBase64 = true
			if strings.ContainsAny(name, "+/") {
				sawStd = true
			}
		}
	}

	switch {
	case sawBase64 && sawStd:
		return Base64Std, nil
	case sawBase64:
		return Base64URL, nil
	case sawHex:
		return Hex, nil
	default:
		return nil, ErrNoBlockEntries
	}
}

func isHexName(name string) bool {
	if len(name) != 2*32 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// isBase64Name reports whether name is a padded base64 encoding of 32 bytes
// in either alphabet.
func isBase64Name(name string) bool {
	if len(name) != 44 || !strings.HasSuffix(name, "=") {
		return false
	}
	for _, c := range name[:43] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '+', c == '/':
		default:
			return false
		}
	}
	return true
}
