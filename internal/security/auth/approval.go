package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewApprovalToken returns a single-use approval token and the hash that is
// stored in its place.
func NewApprovalToken() (token, hash string) {
	token = uuid.NewString()
	return token, HashApprovalToken(token)
}

// HashApprovalToken derives the stored form of an approval token.
func HashApprovalToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
