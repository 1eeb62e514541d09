// Copyright 2025 Certen Protocol

package ledger

import (
	"fmt"
	"math/big"

	"github.com/certenio/manynet/pkg/manycbor"
)

// Amount is an arbitrary-precision, non-negative token quantity, encoded
// on the wire as CBOR tag 2 (PosBignum) via pkg/manycbor.Bignum and
// stored at rest as its big-endian byte representation, the same layout
// the original ledger's TokenAmount used over num_bigint::BigUint.
type Amount struct {
	v *big.Int
}

// Zero is the additive identity.
func Zero() Amount { return Amount{big.NewInt(0)} }

// FromUint64 builds an Amount from a uint64.
func FromUint64(v uint64) Amount { return Amount{new(big.Int).SetUint64(v)} }

// FromBytes interprets b as a big-endian unsigned integer.
func FromBytes(b []byte) Amount { return Amount{new(big.Int).SetBytes(b)} }

// FromDecimalString parses a base-10 string into an Amount, for callers
// (the genesis loader) reading arbitrary-precision amounts out of JSON,
// where a numeric literal would lose precision above 2^53.
func FromDecimalString(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, fmt.Errorf("ledger: invalid amount %q", s)
	}
	return Amount{v}, nil
}

// Bytes renders the big-endian unsigned representation (empty for zero).
func (a Amount) Bytes() []byte {
	if a.v == nil {
		return nil
	}
	return a.v.Bytes()
}

// IsZero reports whether the amount is zero (including the zero value).
func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

// Cmp compares a to b the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return Amount{new(big.Int).Add(a.big(), b.big())} }

// SaturatingSub returns a-b, floored at zero, mirroring the original
// TokenAmount's SubAssign: "if self.0 <= rhs.0 { self.0 = 0 }".
func (a Amount) SaturatingSub(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return Zero()
	}
	return Amount{new(big.Int).Sub(a.big(), b.big())}
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

func (a Amount) String() string { return a.big().String() }

func (a Amount) MarshalCBOR() ([]byte, error) {
	return manycbor.NewBignum(a.big()).MarshalCBOR()
}

func (a *Amount) UnmarshalCBOR(data []byte) error {
	var bn manycbor.Bignum
	if err := bn.UnmarshalCBOR(data); err != nil {
		return err
	}
	a.v = bn.Int
	return nil
}
