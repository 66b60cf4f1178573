package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"
)

// SignHMACSHA512Hex returns the lowercase hex HMAC-SHA512 of payload.
func SignHMACSHA512Hex(secret string, payload []byte) string {
	return hex.EncodeToString(sum(sha512.New, secret, payload))
}

// VerifyHMACSHA512Hex compares a hex encoded HMAC-SHA512 signature in constant time.
func VerifyHMACSHA512Hex(secret string, payload []byte, signature string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || secret == "" {
		return false
	}
	return hmac.Equal(provided, sum(sha512.New, secret, payload))
}

// SignHMACSHA256Base64 returns the standard base64 HMAC-SHA256 of payload.
func SignHMACSHA256Base64(secret string, payload []byte) string {
	return base64.StdEncoding.EncodeToString(sum(sha256.New, secret, payload))
}

// VerifyHMACSHA256Base64 compares a base64 encoded HMAC-SHA256 signature in constant time.
func VerifyHMACSHA256Base64(secret string, payload []byte, signature string) bool {
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || secret == "" {
		return false
	}
	return hmac.Equal(provided, sum(sha256.New, secret, payload))
}

// SHA256Hex fingerprints a payload for duplicate detection.
func SHA256Hex(payload []byte) string {
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}

func sum(fn func() hash.Hash, secret string, payload []byte) []byte {
	mac := hmac.New(fn, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
