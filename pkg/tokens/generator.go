package tokens

import (
	"crypto/rand"
	"fmt"
)

const (
	alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenLength = 12 // ~71 bits
	// largest multiple of len(alphabet) below 256, for unbiased sampling
	sampleLimit = 248
)

func generateToken() (string, error) {
	out := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength*2)
	for len(out) < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= sampleLimit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == tokenLength {
				break
			}
		}
	}
	return string(out), nil
}
