package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/antigravity/summarizer-gateway/internal/storage"
)

const (
	servicePrefix = "sk"
	prefixLength  = 12
	secretBytes   = 24
)

var ErrInvalidKeyFormat = errors.New("invalid api key format")

// GenerateKey creates a new key of the form sk_<prefix>_<secret>. The display
// key is shown once; only prefix and hash are persisted.
func GenerateKey() (displayKey string, prefix string, hash string, err error) {
	prefixBytes := make([]byte, prefixLength)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", "", "", err
	}
	for i := range prefixBytes {
		prefixBytes[i] = alphanumeric[int(prefixBytes[i])%len(alphanumeric)]
	}
	prefix = string(prefixBytes)

	secretRaw := make([]byte, secretBytes)
	if _, err := rand.Read(secretRaw); err != nil {
		return "", "", "", err
	}

	displayKey = servicePrefix + "_" + prefix + "_" + encodeBase62(secretRaw)
	return displayKey, prefix, storage.HashKey(displayKey), nil
}

// ParseKey splits a display key into its prefix and secret.
func ParseKey(displayKey string) (prefix string, secret string, err error) {
	if !strings.HasPrefix(displayKey, servicePrefix+"_") {
		return "", "", ErrInvalidKeyFormat
	}
	rest := strings.TrimPrefix(displayKey, servicePrefix+"_")
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", ErrInvalidKeyFormat
	}
	if len(parts[0]) != prefixLength {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range parts[0] {
		if !isAlphanumeric(c) {
			return "", "", ErrInvalidKeyFormat
		}
	}
	return parts[0], parts[1], nil
}

var alphanumeric = []byte("abcdefghijklmnopqrstuvwxyz0123456789")

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func encodeBase62(data []byte) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(62)
	zero := big.NewInt(0)
	var result []byte

	for num.Cmp(zero) > 0 {
		mod := new(big.Int)
		num.DivMod(num, base, mod)
		result = append(result, base62Alphabet[mod.Int64()])
	}
	// 前导零
	for _, b := range data {
		if b != 0 {
			break
		}
		result = append(result, '0')
	}
	if len(result) == 0 {
		return "0"
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return string(result)
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
