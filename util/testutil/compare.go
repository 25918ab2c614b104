package testutil

import (
	"encoding/hex"
	"strings"
)

// Parses hex bytes separated by any whitespace. Lines starting with "#"
// are ignored.
func ParseHex(str string) ([]byte, error) {
	u := []string{}
	for _, s := range strings.Split(str, "\n") {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		u = append(u, strings.Join(strings.Fields(s), ""))
	}
	return hex.DecodeString(strings.Join(u, ""))
}

// Hex dump with one space between bytes, comparable with ParseHex input.
func FormatHex(b []byte) string {
	u := make([]string, len(b))
	for i, c := range b {
		u[i] = hex.EncodeToString([]byte{c})
	}
	return strings.Join(u, " ")
}
