package filter

import (
	"crypto/sha256"
	"encoding/base64"
)

// ownerAddress derives an item's address from its owner public key the way
// Arweave wallet addresses are derived: base64url(SHA-256(ownerPublicKey)).
func ownerAddress(ownerPublicKey []byte) string {
	sum := sha256.Sum256(ownerPublicKey)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
