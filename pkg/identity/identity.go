// Copyright 2025 Certen Protocol
//
// Package identity implements the self-certifying address algebra: a
// 29-byte value (1-byte kind tag + 28-byte body) derived from a public key,
// with a checksummed textual encoding and Anonymous/PublicKey/Addressable/
// Subresource variants.
package identity

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/certenio/manynet/pkg/manycbor"
	"golang.org/x/crypto/sha3"
)

// Kind tags the variant of an Identity.
type Kind byte

const (
	KindAnonymous   Kind = 0
	KindPublicKey   Kind = 1
	KindAddressable Kind = 2
	KindSubresource Kind = 3
)

const (
	bodyLen    = 28
	encodedLen = 1 + bodyLen // kind byte + hash body, subresource appends 4 more
)

// Identity is a self-certifying address: a kind tag plus a SHA3-224 hash of
// a public key (empty/zero for Anonymous), with an optional 4-byte
// subresource id appended for KindSubresource.
type Identity struct {
	kind       Kind
	body       [bodyLen]byte
	subresource uint32
	hasSub     bool
}

// Anonymous is the single well-known anonymous identity.
var Anonymous = Identity{kind: KindAnonymous}

var (
	ErrInvalidPrefix   = errors.New("identity: invalid textual prefix")
	ErrInvalidChecksum = errors.New("identity: invalid checksum")
	ErrInvalidKind     = errors.New("identity: invalid kind byte")
	ErrInvalidLength   = errors.New("identity: invalid byte length")
)

// FromPublicKey derives a PublicKey-variant Identity from the public subset
// of a key (body = SHA3-224 of the canonical CBOR encoding of the public key).
func FromPublicKey(pk *PublicKey) (Identity, error) {
	body, err := hashPublicKey(pk)
	if err != nil {
		return Identity{}, err
	}
	return Identity{kind: KindPublicKey, body: body}, nil
}

// Addressable derives an Addressable-variant Identity from the same body.
func Addressable(pk *PublicKey) (Identity, error) {
	body, err := hashPublicKey(pk)
	if err != nil {
		return Identity{}, err
	}
	return Identity{kind: KindAddressable, body: body}, nil
}

// WithSubresource returns a Subresource-variant Identity appending the
// given u32 id (big-endian) to this Identity's body. Only valid on an
// Addressable identity (the base from which subresources are derived).
func (id Identity) WithSubresource(sub uint32) Identity {
	return Identity{kind: KindSubresource, body: id.body, subresource: sub, hasSub: true}
}

func hashPublicKey(pk *PublicKey) ([bodyLen]byte, error) {
	var out [bodyLen]byte
	pub, err := pk.PublicCBOR()
	if err != nil {
		return out, err
	}
	h := sha3.Sum224(pub)
	copy(out[:], h[:])
	return out, nil
}

// Kind returns the Identity's variant tag.
func (id Identity) Kind() Kind { return id.kind }

// IsAnonymous reports whether this is the Anonymous identity.
func (id Identity) IsAnonymous() bool { return id.kind == KindAnonymous }

// CanSign reports whether this variant is capable of signing messages.
func (id Identity) CanSign() bool {
	return id.kind == KindPublicKey || id.kind == KindAddressable || id.kind == KindSubresource
}

// CanBeSource reports whether this variant may appear as a message's `from`.
func (id Identity) CanBeSource() bool {
	return id.kind == KindAnonymous || id.kind == KindPublicKey || id.kind == KindAddressable || id.kind == KindSubresource
}

// CanBeDestination reports whether this variant may appear as a message's `to`.
func (id Identity) CanBeDestination() bool {
	return id.kind == KindAddressable || id.kind == KindSubresource
}

// SubresourceID returns the subresource id and whether this identity carries one.
func (id Identity) SubresourceID() (uint32, bool) { return id.subresource, id.hasSub }

// Base returns the Addressable identity this Subresource was derived from
// (or id itself if it is not a Subresource).
func (id Identity) Base() Identity {
	if id.kind != KindSubresource {
		return id
	}
	return Identity{kind: KindAddressable, body: id.body}
}

// Equal reports byte-for-byte equality.
func (id Identity) Equal(other Identity) bool {
	return id.kind == other.kind && id.body == other.body && id.subresource == other.subresource && id.hasSub == other.hasSub
}

// ToBytes renders the canonical byte representation: 1 kind byte, 28 body
// bytes (Anonymous renders all-zero body), plus 4 big-endian subresource
// bytes when present.
func (id Identity) ToBytes() []byte {
	out := make([]byte, 0, encodedLen+4)
	out = append(out, byte(id.kind))
	out = append(out, id.body[:]...)
	if id.hasSub {
		var sub [4]byte
		binary.BigEndian.PutUint32(sub[:], id.subresource)
		out = append(out, sub[:]...)
	}
	return out
}

// FromBytes parses the canonical byte representation produced by ToBytes.
func FromBytes(b []byte) (Identity, error) {
	if len(b) == 0 {
		return Identity{}, ErrInvalidLength
	}
	kind := Kind(b[0])
	rest := b[1:]
	switch kind {
	case KindAnonymous:
		if len(rest) != 0 && !isZero(rest) {
			return Identity{}, ErrInvalidLength
		}
		return Anonymous, nil
	case KindPublicKey, KindAddressable:
		if len(rest) != bodyLen {
			return Identity{}, ErrInvalidLength
		}
		var body [bodyLen]byte
		copy(body[:], rest)
		return Identity{kind: kind, body: body}, nil
	case KindSubresource:
		if len(rest) != bodyLen+4 {
			return Identity{}, ErrInvalidLength
		}
		var body [bodyLen]byte
		copy(body[:], rest[:bodyLen])
		sub := binary.BigEndian.Uint32(rest[bodyLen:])
		return Identity{kind: kind, body: body, subresource: sub, hasSub: true}, nil
	default:
		return Identity{}, ErrInvalidKind
	}
}

// MarshalCBOR encodes the Identity as a tag-10000 Identity-bytes value,
// letting module argument/return structs embed an Identity field directly
// instead of round-tripping through manycbor.IdentityBytes by hand.
func (id Identity) MarshalCBOR() ([]byte, error) {
	return manycbor.IdentityBytes(id.ToBytes()).MarshalCBOR()
}

// UnmarshalCBOR decodes a tag-10000 Identity-bytes value.
func (id *Identity) UnmarshalCBOR(data []byte) error {
	var ib manycbor.IdentityBytes
	if err := ib.UnmarshalCBOR(data); err != nil {
		return err
	}
	parsed, err := FromBytes(ib)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ToText renders the lowercase, 'o'-prefixed, CRC-16-checksummed base32
// encoding (RFC 4648, no padding) of the Identity's byte representation.
// Anonymous renders as the literal "oaa".
func (id Identity) ToText() string {
	if id.kind == KindAnonymous {
		return "oaa"
	}
	raw := id.ToBytes()
	sum := crc16(raw)
	var sumBytes [2]byte
	binary.BigEndian.PutUint16(sumBytes[:], sum)

	checksumPart := base32Encode(sumBytes[:])[:2]
	bodyPart := base32Encode(raw)
	return "o" + checksumPart + bodyPart
}

// MarshalJSON renders an Identity as its ToText string, so it reads as
// plain text in CLI/log JSON output rather than as its unexported byte
// fields (which would otherwise marshal to "{}").
func (id Identity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.ToText() + `"`), nil
}

// UnmarshalJSON parses the quoted ToText string produced by MarshalJSON.
func (id *Identity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := FromText(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// FromText parses the textual encoding produced by ToText, verifying the
// embedded checksum.
func FromText(s string) (Identity, error) {
	s = strings.ToLower(s)
	if s == "oaa" {
		return Anonymous, nil
	}
	if !strings.HasPrefix(s, "o") || len(s) < 3 {
		return Identity{}, ErrInvalidPrefix
	}
	checksumPart := s[1:3]
	bodyPart := s[3:]

	raw, err := base32Decode(bodyPart)
	if err != nil {
		return Identity{}, ErrInvalidPrefix
	}

	wantSum := crc16(raw)
	var wantBytes [2]byte
	binary.BigEndian.PutUint16(wantBytes[:], wantSum)
	wantChecksumPart := base32Encode(wantBytes[:])[:2]

	if wantChecksumPart != checksumPart {
		return Identity{}, ErrInvalidChecksum
	}

	return FromBytes(raw)
}
