package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/multiformats/go-multibase"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// PublicKey is an ed25519 public key. It is comparable and can be used as a map key.
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey holds an ed25519 signing key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// KeyPair is a private key and its public counterpart.
type KeyPair struct {
	Private *PrivateKey
	Public  PublicKey
}

func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeyPair(pub, priv), nil
}

// KeyPairFromSeed derives a key pair from a 32 byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed length %d", ErrInvalidPrivateKey, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return newKeyPair(priv.Public().(ed25519.PublicKey), priv), nil
}

func newKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *KeyPair {
	var pk PublicKey
	copy(pk[:], pub)
	return &KeyPair{
		Private: &PrivateKey{key: priv},
		Public:  pk,
	}
}

func (k *PrivateKey) Sign(data []byte) []byte {
	return ed25519.Sign(k.key, data)
}

func (k *PrivateKey) Seed() []byte {
	return k.key.Seed()
}

// Verify reports whether sig is a valid signature of data by the public key.
func (p PublicKey) Verify(data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(p[:], data, sig)
}

func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

func (p PublicKey) String() string {
	s, _ := multibase.Encode(multibase.Base58BTC, p[:])
	return s
}

// PublicKeyFromBytes copies raw key bytes into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != len(pk) {
		return pk, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKey decodes a multibase encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	_, b, err := multibase.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidPublicKey, err)
	}
	return PublicKeyFromBytes(b)
}

// ParsePrivateKey decodes a multibase encoded seed.
func ParsePrivateKey(s string) (*KeyPair, error) {
	_, b, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
	}
	return KeyPairFromSeed(b)
}

// EncodePrivateKey returns the multibase encoded seed of the key.
func EncodePrivateKey(k *PrivateKey) string {
	s, _ := multibase.Encode(multibase.Base58BTC, k.Seed())
	return s
}
