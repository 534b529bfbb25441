package token

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Alphabet is the character set for subdomain labels and stream tokens.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns n characters drawn uniformly from Alphabet.
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	size := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = Alphabet[idx.Int64()]
	}
	return string(out), nil
}
