package identity

import (
	"crypto/ed25519"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

// Algorithm identifies the signing algorithm carried by a PublicKey.
type Algorithm string

const (
	AlgEdDSA  Algorithm = "EdDSA"  // Ed25519, curve Ed25519
	AlgES256K Algorithm = "ES256K" // ECDSA over secp256k1
)

// PublicKey is a COSE-key-shaped structure: algorithm + curve identifiers,
// public material X, optional private material D, optional key-id.
// CBOR field names mirror COSE's small integer labels via the `cbor`
// struct tags so the wire shape matches a COSE_Key map.
type PublicKey struct {
	Alg Algorithm `cbor:"1,keyasint"`
	Crv string    `cbor:"-1,keyasint"`
	X   []byte    `cbor:"-2,keyasint"`
	D   []byte    `cbor:"-4,keyasint,omitempty"`
	Kid []byte    `cbor:"2,keyasint,omitempty"`
}

var (
	ErrUnsupportedAlgorithm = errors.New("identity: unsupported algorithm")
	ErrInvalidKeyMaterial   = errors.New("identity: invalid key material")
)

// publicCBORMode is a canonical (deterministic) CBOR encoder: sorted map
// keys, no indefinite-length items, matching the COSE Sig_structure's
// requirement for a single canonical byte representation.
var publicCBORMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Public returns the public-only subset of this key (D stripped).
func (pk *PublicKey) Public() *PublicKey {
	return &PublicKey{Alg: pk.Alg, Crv: pk.Crv, X: pk.X, Kid: pk.Kid}
}

// PublicCBOR canonically encodes the public subset of this key; this is
// the byte string hashed (SHA3-224) to derive a PublicKey/Addressable
// Identity's body.
func (pk *PublicKey) PublicCBOR() ([]byte, error) {
	return publicCBORMode.Marshal(pk.Public())
}

// NewEd25519PublicKey wraps a raw Ed25519 public key.
func NewEd25519PublicKey(pub ed25519.PublicKey) *PublicKey {
	return &PublicKey{Alg: AlgEdDSA, Crv: "Ed25519", X: append([]byte(nil), pub...)}
}

// NewEd25519KeyPair wraps an Ed25519 key pair (public + private material).
func NewEd25519KeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *PublicKey {
	return &PublicKey{Alg: AlgEdDSA, Crv: "Ed25519", X: append([]byte(nil), pub...), D: append([]byte(nil), priv...)}
}

// NewSecp256k1PublicKey wraps a compressed secp256k1 public key (ES256K).
func NewSecp256k1PublicKey(compressed []byte) *PublicKey {
	return &PublicKey{Alg: AlgES256K, Crv: "secp256k1", X: append([]byte(nil), compressed...)}
}

// Sign produces a detached signature over msg using this key's private
// material. EdDSA signs the message directly; ES256K signs its Keccak256
// digest, matching go-ethereum's crypto.Sign convention.
func (pk *PublicKey) Sign(msg []byte) ([]byte, error) {
	switch pk.Alg {
	case AlgEdDSA:
		if len(pk.D) != ed25519.PrivateKeySize {
			return nil, ErrInvalidKeyMaterial
		}
		return ed25519.Sign(ed25519.PrivateKey(pk.D), msg), nil
	case AlgES256K:
		if len(pk.D) == 0 {
			return nil, ErrInvalidKeyMaterial
		}
		priv, err := crypto.ToECDSA(pk.D)
		if err != nil {
			return nil, err
		}
		digest := crypto.Keccak256(msg)
		sig, err := crypto.Sign(digest, priv)
		if err != nil {
			return nil, err
		}
		return sig[:64], nil // drop recovery id; verification uses the stored X
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// Verify checks a detached signature over msg against this key's public
// material X.
func (pk *PublicKey) Verify(msg, sig []byte) (bool, error) {
	switch pk.Alg {
	case AlgEdDSA:
		if len(pk.X) != ed25519.PublicKeySize {
			return false, ErrInvalidKeyMaterial
		}
		return ed25519.Verify(ed25519.PublicKey(pk.X), msg, sig), nil
	case AlgES256K:
		if len(pk.X) == 0 {
			return false, ErrInvalidKeyMaterial
		}
		digest := crypto.Keccak256(msg)
		if len(sig) != 64 {
			return false, ErrInvalidKeyMaterial
		}
		return crypto.VerifySignature(pk.X, digest, sig), nil
	default:
		return false, ErrUnsupportedAlgorithm
	}
}
