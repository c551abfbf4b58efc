// Package identity holds the signing key tossd uses for its own
// messaging identity on the secure-messaging network, distinct from any
// per-toss escrow wallet key (which the opaque WalletProvider owns).
// Reuses secp256k1/v3 for the key type since the messaging network's
// signature scheme is the same curve dcrlnd's watchtower NodePrivKey config
// field uses.
package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v3"
	"github.com/decred/dcrd/dcrec/secp256k1/v3/ecdsa"
)

// Key is the agent's own signing identity.
type Key struct {
	priv *secp256k1.PrivateKey
}

// FromHex parses a 32-byte hex-encoded private key, as configured by the
// "wallet key" option in tossd's configuration.
func FromHex(hexKey string) (Key, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return Key{}, fmt.Errorf("identity: invalid hex-encoded wallet key: %w", err)
	}
	if len(raw) != 32 {
		return Key{}, fmt.Errorf("identity: wallet key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return Key{priv: priv}, nil
}

// Generate returns a freshly generated identity key, used when no "wallet
// key" is configured (development/local network only).
func Generate() (Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return Key{}, err
	}
	return Key{priv: priv}, nil
}

// PublicKeyHex returns the compressed public key as a hex string, the form
// the messaging network identifies this agent by.
func (k Key) PublicKeyHex() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

// Sign signs digest, a precomputed 32-byte message hash (the messaging
// network's own envelope hashing is out of scope here), and returns a DER
// signature.
func (k Key) Sign(digest [32]byte) []byte {
	sig := ecdsa.Sign(k.priv, digest[:])
	return sig.Serialize()
}
