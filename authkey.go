package logbroker

import (
	"crypto/rand"
	"sync"
)

// authKey is the process-wide shared secret used by a server writer
// when no explicit encryption key is configured. It is generated once,
// lazily, and never rotated for the life of the process; it only ever
// backs AuthKey mode. NetClient writers use the key in their own
// ClientConfig (or one installed later with SetKey).
var (
	authKeyOnce sync.Once
	authKey     []byte
)

// AuthKey returns the process-wide 32-byte AuthKey material, generating
// it on first use.
func AuthKey() []byte {
	authKeyOnce.Do(func() {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(ErrIo("authkey", err))
		}
		authKey = key
	})
	return authKey
}
