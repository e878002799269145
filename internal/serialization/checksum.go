package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
)

// checksumKey is the metadata entry holding the data section checksum.
const checksumKey = "sha256"

// ErrChecksumMismatch is returned when the data section does not match the
// recorded checksum.
var ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", errs.ErrConfig)

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateChecksum(data []byte, stored string) error {
	if got := Checksum(data); got != stored {
		return fmt.Errorf("%w: got %s, recorded %s", ErrChecksumMismatch, got, stored)
	}
	return nil
}
