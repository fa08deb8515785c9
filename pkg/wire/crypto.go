package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// aad is the fixed additional authenticated data bound to every sealed
// frame, matching the source implementation's constant tag.
const aad = "FastLoggingRs"

// NonceGenerator derives successive 12-byte GCM nonces from a
// monotonically increasing counter, the same scheme as the source's
// NonceGenerator: the low 8 bytes carry the counter little-endian, the
// high 4 bytes stay zero. It is safe for concurrent use.
type NonceGenerator struct {
	counter uint64
}

// Next returns the next nonce in sequence. Nonces never repeat within
// one generator; a new generator (such as the one inside each fresh
// Sealer or Opener) starts its counter at zero again, even when it is
// used with a key an earlier generator already used.
func (n *NonceGenerator) Next() [12]byte {
	c := atomic.AddUint64(&n.counter, 1)
	var nonce [12]byte
	binary.LittleEndian.PutUint64(nonce[0:8], c)
	return nonce
}

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("wire: generate key: %w", err)
	}
	return key, nil
}

// Sealer seals plaintext frames with AES-256-GCM under a single key,
// deriving nonces from its own NonceGenerator. The nonce is never
// transmitted: a paired Opener constructed fresh for the same
// connection derives the identical sequence independently, exactly as
// the source's client writes only ciphertext||tag and its server opens
// with a NonceGenerator of its own. A Sealer must never outlive the
// one connection it was built for.
type Sealer struct {
	gcm   cipher.AEAD
	nonce NonceGenerator
}

// NewSealer builds a Sealer from a 32-byte AES-256 key, its nonce
// counter starting at zero.
func NewSealer(key []byte) (*Sealer, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext, returning ciphertext||tag with no nonce
// attached; the peer reconstructs the nonce from its own counter.
func (s *Sealer) Seal(plaintext []byte) []byte {
	nonce := s.nonce.Next()
	return s.gcm.Seal(nil, nonce[:], plaintext, []byte(aad))
}

// Opener opens frames sealed by a Sealer holding the same key, deriving
// the matching nonce sequence from its own NonceGenerator rather than
// reading one off the wire. Exactly one Opener must be paired with
// exactly one Sealer for the lifetime of a connection, both starting
// their counters at zero, or the sequences drift out of sync.
type Opener struct {
	gcm   cipher.AEAD
	nonce NonceGenerator
}

// NewOpener builds an Opener from a 32-byte AES-256 key.
func NewOpener(key []byte) (*Opener, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Opener{gcm: gcm}, nil
}

// Open decrypts a ciphertext||tag frame produced by the paired
// Sealer's Seal, advancing this Opener's own nonce counter in step.
func (o *Opener) Open(sealed []byte) ([]byte, error) {
	nonce := o.nonce.Next()
	plaintext, err := o.gcm.Open(nil, nonce[:], sealed, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("wire: decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("wire: AES-256 key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wire: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wire: new gcm: %w", err)
	}
	return gcm, nil
}
