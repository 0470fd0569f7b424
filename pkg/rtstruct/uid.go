package rtstruct

import (
	"math/big"

	"github.com/google/uuid"
)

// DefaultUIDRoot is the organizational prefix of generated instance UIDs.
const DefaultUIDRoot = "1.2.246.352.221."

const maxUIDLength = 64

// NewUID returns root followed by the decimal form of a random UUID. The
// suffix never starts with "0" and the result never exceeds 64 characters.
func NewUID(root string) string {
	for {
		id := uuid.New()
		suffix := new(big.Int).SetBytes(id[:]).String()
		if suffix[0] == '0' {
			continue
		}
		uid := root + suffix
		if len(uid) > maxUIDLength {
			uid = uid[:maxUIDLength]
		}
		return uid
	}
}
