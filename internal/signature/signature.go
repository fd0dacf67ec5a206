package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
)

// Sign returns the API-Sign header value for a private REST call:
//
//	base64(HMAC-SHA512(base64decode(secret), path + SHA256(nonce + body)))
//
// body is the exact encoded request body, form or JSON, including the nonce.
func Sign(secret, path string, nonce uint64, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	digest := sha256.Sum256([]byte(strconv.FormatUint(nonce, 10) + body))

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
