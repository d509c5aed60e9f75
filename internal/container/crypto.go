package container

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sessionKeySize is the size in bytes of the random session key. Create
// writes these 32 raw bytes to the side-channel file as they are, not
// hex-encoded, and Open reads them back the same way.
const sessionKeySize = 32

// KeyID identifies the AEAD/KDF combination used for a container. Only one
// combination exists today; the field exists in the header so a future
// version can add another without breaking readers of old containers.
const KeyIDChaCha20Poly1305HKDFSHA256 uint16 = 1

// generateSessionKey returns a fresh random session key, to be written to
// the `<container>.key` side channel and never stored inside the
// container itself (§4.5).
func generateSessionKey() ([]byte, error) {
	key := make([]byte, sessionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("container: generate session key: %w", err)
	}
	return key, nil
}

// deriveChunkKey derives the per-session AEAD key from the random session
// key and the header's kdf_salt via HKDF-SHA256. The salt gives the
// container header a self-contained key-derivation parameter (§6) without
// requiring the raw session key to ever touch the container file.
func deriveChunkKey(sessionKey []byte, salt [16]byte) ([]byte, error) {
	h := hkdf.New(sha256.New, sessionKey, salt[:], []byte("tracewell-chunk-key-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("container: derive chunk key: %w", err)
	}
	return key, nil
}

// nonceSequence produces monotonically increasing 12-byte nonces by
// counting up from zero, matching §4.5's "nonces are a monotonically
// increasing counter."
type nonceSequence struct {
	counter uint64
}

func (n *nonceSequence) next() [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], n.counter)
	n.counter++
	return nonce
}
