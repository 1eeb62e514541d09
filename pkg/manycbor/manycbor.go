// Copyright 2025 Certen Protocol
//
// Package manycbor wraps fxamacker/cbor with the canonical (deterministic)
// encoding mode the envelope's signing input requires, plus the tagged
// helpers the wire format names in spec.md §6: DateTime (0/1), PosBignum
// (2), Identity-bytes (10000), Request-message (10001),
// Response-message (10002).
package manycbor

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

const (
	TagDateTimeString  = 0
	TagDateTimeEpoch   = 1
	TagPosBignum       = 2
	TagIdentity        = 10000
	TagRequestMessage  = 10001
	TagResponseMessage = 10002
)

// EncMode is the canonical encoder used everywhere a byte-stable
// representation is required (signing inputs, event log entries, state
// hashed into the Merkle root).
var EncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// DecMode is a permissive decoder paired with EncMode.
var DecMode = func() cbor.DecMode {
	m, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Marshal canonically encodes v.
func Marshal(v interface{}) ([]byte, error) { return EncMode.Marshal(v) }

// Unmarshal decodes CBOR-encoded data into v.
func Unmarshal(data []byte, v interface{}) error { return DecMode.Unmarshal(data, v) }

// EpochTime is a timestamp encoded as CBOR tag 1 carrying whole seconds
// since the Unix epoch, per spec.md §4.D.
type EpochTime uint64

func (t EpochTime) MarshalCBOR() ([]byte, error) {
	tagged := cbor.Tag{Number: TagDateTimeEpoch, Content: uint64(t)}
	return EncMode.Marshal(tagged)
}

func (t *EpochTime) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := DecMode.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch v := tag.Content.(type) {
	case uint64:
		*t = EpochTime(v)
	case int64:
		*t = EpochTime(v)
	default:
		return errUnexpectedTagContent
	}
	return nil
}

// Bignum is an arbitrary-precision non-negative integer encoded as CBOR
// tag 2 (PosBignum), used for token amounts and ledger balances.
type Bignum struct{ *big.Int }

func NewBignum(v *big.Int) Bignum { return Bignum{v} }

func (b Bignum) MarshalCBOR() ([]byte, error) {
	v := b.Int
	if v == nil {
		v = big.NewInt(0)
	}
	tagged := cbor.Tag{Number: TagPosBignum, Content: v.Bytes()}
	return EncMode.Marshal(tagged)
}

func (b *Bignum) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := DecMode.Unmarshal(data, &tag); err != nil {
		return err
	}
	raw, ok := tag.Content.([]byte)
	if !ok {
		return errUnexpectedTagContent
	}
	b.Int = new(big.Int).SetBytes(raw)
	return nil
}

// IdentityBytes is the CBOR tag-10000 wrapper around an Identity's raw
// byte representation (see pkg/identity for the Identity type itself;
// this package stays leaf-level to avoid an import cycle).
type IdentityBytes []byte

func (b IdentityBytes) MarshalCBOR() ([]byte, error) {
	tagged := cbor.Tag{Number: TagIdentity, Content: []byte(b)}
	return EncMode.Marshal(tagged)
}

func (b *IdentityBytes) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := DecMode.Unmarshal(data, &tag); err != nil {
		return err
	}
	raw, ok := tag.Content.([]byte)
	if !ok {
		return errUnexpectedTagContent
	}
	*b = raw
	return nil
}

var errUnexpectedTagContent = cborError("manycbor: unexpected tag content type")

type cborError string

func (e cborError) Error() string { return string(e) }
