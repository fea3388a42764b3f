package registry

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/google/uuid"
)

// ResolveIdentity derives a connection id from a credential.
//
// When present is true the id is the SHA-1 hex digest of credential, so the
// same credential always maps to the same id. Otherwise a random UUIDv4 is
// hashed the same way, giving every id one shape.
func ResolveIdentity(credential string, present bool) string {
	if !present {
		credential = uuid.NewString()
	}
	sum := sha1.Sum([]byte(credential))
	return hex.EncodeToString(sum[:])
}
