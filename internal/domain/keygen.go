package domain

import (
	"crypto/rand"
	"math/big"
)

const keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const keyLength = 16

// KeySuffix marks keys issued by this loader; external tooling matches
// on it, so the format is fixed.
const KeySuffix = "-Rloader"

// GenerateKey produces a fresh lifetime access key, 16 characters from
// [A-Z0-9] plus the loader suffix.
func GenerateKey() string {
	buf := make([]byte, keyLength)
	max := big.NewInt(int64(len(keyCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is
			// broken; fall back to a fixed char rather than panic.
			buf[i] = keyCharset[0]
			continue
		}
		buf[i] = keyCharset[n.Int64()]
	}
	return string(buf) + KeySuffix
}
