package util

import (
	"golang.org/x/crypto/bcrypt"
)

// HashToken turns a plaintext operator token into a bcrypt hash for config.
func HashToken(token string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(token), 8)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckToken verifies a plaintext operator token against its bcrypt hash.
func CheckToken(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}
