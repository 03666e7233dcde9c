// Package ui contains formatting helpers for terminal output.
package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dupres/dupres/internal/errors"

	"golang.org/x/text/width"
)

var byteUnits = []struct {
	shift  uint
	suffix string
}{
	{40, "TiB"},
	{30, "GiB"},
	{20, "MiB"},
	{10, "KiB"},
}

// FormatBytes formats c with a binary unit suffix.
func FormatBytes(c uint64) string {
	for _, u := range byteUnits {
		if c >= 1<<u.shift {
			return fmt.Sprintf("%.3f %s", float64(c)/float64(uint64(1)<<u.shift), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", c)
}

// FormatPercent formats numerator/denominator as a percentage, capped at
// 100%. It returns an empty string if denominator is zero.
func FormatPercent(numerator uint64, denominator uint64) string {
	if denominator == 0 {
		return ""
	}
	percent := min(100.0*float64(numerator)/float64(denominator), 100)
	return fmt.Sprintf("%3.2f%%", percent)
}

// FormatDuration formats d as MM:SS, or H:MM:SS for an hour and more.
func FormatDuration(d time.Duration) string {
	sec := int64(d / time.Second)
	h, m, s := sec/3600, sec/60%60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatRate formats the average throughput of c bytes in d.
func FormatRate(c uint64, d time.Duration) string {
	if d < time.Second {
		return "-"
	}
	return FormatBytes(uint64(float64(c)/d.Seconds())) + "/s"
}

var sizeShift = map[byte]uint{'k': 10, 'm': 20, 'g': 30, 't': 40}

// ParseBytes parses a size such as "512", "64k", "32M" or "1GiB". The unit
// letters K, M, G and T stand for powers of 1024 and may be followed by
// "B" or "iB".
func ParseBytes(s string) (int64, error) {
	num := strings.TrimSpace(s)
	if num == "" {
		return 0, errors.New("expected size, got empty string")
	}

	lower := strings.ToLower(num)
	for _, suffix := range []string{"ib", "b"} {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			lower = lower[:len(lower)-len(suffix)]
			break
		}
	}

	var shift uint
	if n := len(lower); n > 0 {
		if sh, ok := sizeShift[lower[n-1]]; ok {
			shift = sh
			lower = lower[:n-1]
		}
	}

	value, err := strconv.ParseUint(lower, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid size %q", s)
	}

	hi, lo := bits.Mul64(value, uint64(1)<<shift)
	if hi != 0 || lo > 1<<63-1 {
		return 0, errors.Errorf("size %q: %v", s, strconv.ErrRange)
	}
	return int64(lo), nil
}

// ToJSONString encodes status as a single line of JSON.
func ToJSONString(status interface{}) string {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(status); err != nil {
		panic(err)
	}
	return buf.String()
}

// Quote returns line quoted if it contains control characters or invalid
// UTF-8, so that paths from a backup cannot mess up the terminal.
func Quote(line string) string {
	for _, r := range line {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return strconv.Quote(line)
		}
	}
	return line
}

// Truncate shortens s to at most w terminal cells. Ambiguous runes count as
// two cells.
func Truncate(s string, w int) string {
	if len(s) < w {
		// every rune takes at least as many bytes as cells
		return s
	}

	for i := 0; i < len(s); {
		prop, size := width.LookupString(s[i:])
		cells := 1
		if s[i] > unicode.MaxASCII {
			if k := prop.Kind(); k != width.Neutral && k != width.EastAsianNarrow {
				cells = 2
			}
		}
		if size == 0 {
			size = 1
		}

		w -= cells
		if w < 0 {
			return s[:i]
		}
		i += size
	}
	return s
}
