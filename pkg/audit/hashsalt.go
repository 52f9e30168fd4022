package audit

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// deriveHashSalt expands a configured secret into a fixed-length salt via
// HKDF-SHA256, rather than using the secret as a raw byte-concat salt.
func deriveHashSalt(secret string) []byte {
	if secret == "" {
		secret = "auzguard-default-hash-salt"
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("auzguard:audit:payload-hash-salt:v1"))
	salt := make([]byte, 32)
	if _, err := io.ReadFull(reader, salt); err != nil {
		// hkdf.New's Reader only fails once the expand limit (255*hash size)
		// is exceeded; 32 bytes from a SHA-256 HKDF is always satisfiable.
		panic("audit: hkdf expand failed: " + err.Error())
	}
	return salt
}
