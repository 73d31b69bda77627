package util

import (
	"fmt"
	"strings"
)

// Printable renders b for a log line: bytes 32..126 appear literally,
// everything else as <0xNN>.
func Printable(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= 32 && c < 127 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "<0x%02x>", c)
	}
	return sb.String()
}
