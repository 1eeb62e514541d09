// Copyright 2025 Certen Protocol
//
// Package envelope implements the signed, COSE-Sign1-shaped outer
// container carrying a request or response message: protected headers,
// an unprotected header map, a payload, and a detached signature over the
// canonical Sig_structure (protected-headers || payload).
package envelope

import (
	"errors"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/fxamacker/cbor/v2"
)

const sigContext = "Signature1" // COSE_Sign1 context string, RFC 8152 §4.4

const contentTypeCBOR = "application/cbor"

// ProtectedHeaders are the signed headers: algorithm, key-id (the sender
// Identity's byte form), content-type, and an optional embedded keyset.
type ProtectedHeaders struct {
	Algorithm   identity.Algorithm           `cbor:"1,keyasint"`
	KeyID       []byte                       `cbor:"4,keyasint"`
	ContentType string                       `cbor:"3,keyasint,omitempty"`
	Keyset      map[string]*identity.PublicKey `cbor:"100,keyasint,omitempty"`
}

// Envelope is the signed outer container.
type Envelope struct {
	Protected   ProtectedHeaders
	Unprotected map[int]interface{}
	Payload     []byte
	Signature   []byte
}

var (
	ErrEmptyEnvelope             = errors.New("envelope: empty payload")
	ErrCouldNotVerifySignature   = errors.New("envelope: could not verify signature")
	ErrInvalidFromIdentity       = errors.New("envelope: from identity does not match key-id")
	ErrUnknownKey                = errors.New("envelope: no public key found for key-id")
)

// KeyStore resolves a key-id (Identity bytes) to a public key, for
// envelopes that reference an out-of-band key rather than embedding one.
type KeyStore interface {
	Lookup(id identity.Identity) (*identity.PublicKey, bool)
}

// sigStructure builds the COSE Sig_structure: [context, protected, external_aad, payload].
func sigStructure(protectedBytes, payload []byte) ([]byte, error) {
	arr := []interface{}{sigContext, protectedBytes, []byte{}, payload}
	return manycbor.Marshal(arr)
}

// Sign builds a signed envelope carrying payload (already-CBOR-encoded
// request or response message), signed by signer under sender's identity.
// If sender is Anonymous, the signature is left empty.
func Sign(sender identity.Identity, signer *identity.PublicKey, payload []byte, embedKeyset map[string]*identity.PublicKey) (*Envelope, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyEnvelope
	}
	protected := ProtectedHeaders{
		KeyID:       sender.ToBytes(),
		ContentType: contentTypeCBOR,
	}
	if signer != nil {
		protected.Algorithm = signer.Alg
	}
	if embedKeyset != nil {
		protected.Keyset = embedKeyset
	}

	protectedBytes, err := manycbor.Marshal(protected)
	if err != nil {
		return nil, err
	}

	env := &Envelope{Protected: protected, Payload: payload}

	if sender.IsAnonymous() {
		env.Signature = nil
		return env, nil
	}

	input, err := sigStructure(protectedBytes, payload)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(input)
	if err != nil {
		return nil, err
	}
	env.Signature = sig
	return env, nil
}

// Verify checks the envelope's signature and returns the key-id Identity
// it was signed under. store is consulted when the envelope does not
// embed its own keyset.
func Verify(env *Envelope, store KeyStore) (identity.Identity, error) {
	if len(env.Payload) == 0 {
		return identity.Identity{}, ErrEmptyEnvelope
	}
	keyID, err := identity.FromBytes(env.Protected.KeyID)
	if err != nil {
		return identity.Identity{}, ErrCouldNotVerifySignature
	}
	if keyID.IsAnonymous() {
		return keyID, nil
	}

	pub, err := resolveKey(env, keyID, store)
	if err != nil {
		return identity.Identity{}, err
	}

	if err := checkIdentityMatchesKey(keyID, pub); err != nil {
		return identity.Identity{}, err
	}

	protectedBytes, err := manycbor.Marshal(env.Protected)
	if err != nil {
		return identity.Identity{}, err
	}
	input, err := sigStructure(protectedBytes, env.Payload)
	if err != nil {
		return identity.Identity{}, err
	}
	ok, err := pub.Verify(input, env.Signature)
	if err != nil || !ok {
		return identity.Identity{}, ErrCouldNotVerifySignature
	}
	return keyID, nil
}

func resolveKey(env *Envelope, keyID identity.Identity, store KeyStore) (*identity.PublicKey, error) {
	kidText := keyID.ToText()
	if env.Protected.Keyset != nil {
		if pk, ok := env.Protected.Keyset[kidText]; ok {
			return pk, nil
		}
	}
	if store != nil {
		if pk, ok := store.Lookup(keyID); ok {
			return pk, nil
		}
	}
	return nil, ErrUnknownKey
}

func checkIdentityMatchesKey(keyID identity.Identity, pub *identity.PublicKey) error {
	base := keyID.Base()
	var derived identity.Identity
	var err error
	switch base.Kind() {
	case identity.KindPublicKey:
		derived, err = identity.FromPublicKey(pub)
	default:
		derived, err = identity.Addressable(pub)
	}
	if err != nil {
		return ErrCouldNotVerifySignature
	}
	if !derived.Equal(base) {
		return ErrInvalidFromIdentity
	}
	return nil
}

// Encode produces the final COSE_Sign1-tagged byte stream for transport.
func Encode(env *Envelope) ([]byte, error) {
	arr := []interface{}{
		mustMarshal(env.Protected),
		env.Unprotected,
		env.Payload,
		env.Signature,
	}
	tag := cbor.Tag{Number: 18, Content: arr}
	return manycbor.Marshal(tag)
}

// Decode parses the byte stream produced by Encode.
func Decode(data []byte) (*Envelope, error) {
	var tag cbor.Tag
	if err := manycbor.DecMode.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	if tag.Number != 18 {
		return nil, errors.New("envelope: expected COSE_Sign1 tag 18")
	}
	arr, ok := tag.Content.([]interface{})
	if !ok || len(arr) != 4 {
		return nil, errors.New("envelope: malformed COSE_Sign1 array")
	}
	protectedBytes, ok := arr[0].([]byte)
	if !ok {
		return nil, errors.New("envelope: malformed protected headers")
	}
	var protected ProtectedHeaders
	if err := manycbor.Unmarshal(protectedBytes, &protected); err != nil {
		return nil, err
	}
	payload, _ := arr[2].([]byte)
	sig, _ := arr[3].([]byte)

	env := &Envelope{Protected: protected, Payload: payload, Signature: sig}
	if m, ok := arr[1].(map[interface{}]interface{}); ok {
		env.Unprotected = map[int]interface{}{}
		for k, v := range m {
			if ik, ok := k.(uint64); ok {
				env.Unprotected[int(ik)] = v
			}
		}
	}
	return env, nil
}

func mustMarshal(v interface{}) []byte {
	b, err := manycbor.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
