package at

import (
	"encoding/hex"
	"regexp"
	"strings"
)

var hexSanitizer = regexp.MustCompile(`\s+`)

// HexToBinary converts the hex representation used in AT commands for binary data into a slice of bytes.
func HexToBinary(s string) ([]byte, error) {
	sanitized := hexSanitizer.ReplaceAllString(s, "")
	return hex.DecodeString(sanitized)
}

// BinaryToHex converts a slice of bytes into the upper-case hex representation used in AT commands.
func BinaryToHex(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
