// Package checksum computes and checks SHA-256 digests for archived export files.
// Digests are published next to each archived file in sha256sum(1) format so an
// operator can verify a download with standard tooling.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 verifies that the checksum of data matches the expected checksum
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return actualChecksum == strings.ToLower(expectedChecksum), nil
}

// SumsLine formats a digest the way sha256sum prints it: "<hex>  <filename>\n"
func SumsLine(sum, filename string) string {
	return sum + "  " + filename + "\n"
}

// ParseSumsLine splits a sha256sum line into digest and filename
func ParseSumsLine(line string) (sum, filename string, err error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 2 || len(fields[0]) != sha256.Size*2 {
		return "", "", fmt.Errorf("malformed checksum line: %q", line)
	}
	return fields[0], strings.TrimPrefix(fields[1], "*"), nil
}
