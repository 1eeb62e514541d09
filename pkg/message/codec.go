package message

import (
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/protoerr"
	"github.com/fxamacker/cbor/v2"
)

// wire field keys, shared between Request and Response.
const (
	fieldVersion    = 0
	fieldFrom       = 1
	fieldTo         = 2
	fieldMethod     = 3
	fieldData       = 4
	fieldTimestamp  = 5
	fieldID         = 6
	fieldAttributes = 7
	fieldError      = 8
)

// MarshalCBOR encodes a Request as a tag-10001 map, per spec.md §4.D/§6.
func (r *Request) MarshalCBOR() ([]byte, error) {
	m := map[int]cbor.RawMessage{}
	if r.Version != 0 {
		putRaw(m, fieldVersion, r.Version)
	}
	if r.From != nil && !r.From.IsAnonymous() {
		putRaw(m, fieldFrom, manycbor.IdentityBytes(r.From.ToBytes()))
	}
	putRaw(m, fieldTo, manycbor.IdentityBytes(r.To.ToBytes()))
	putRaw(m, fieldMethod, r.Method)
	putRaw(m, fieldData, r.Data)
	if r.Timestamp != nil {
		putRaw(m, fieldTimestamp, manycbor.EpochTime(*r.Timestamp))
	}
	if r.ID != nil {
		putRaw(m, fieldID, *r.ID)
	}
	if len(r.Attributes) > 0 {
		putRaw(m, fieldAttributes, r.Attributes)
	}
	tagged := cbor.Tag{Number: manycbor.TagRequestMessage, Content: m}
	return manycbor.EncMode.Marshal(tagged)
}

// UnmarshalCBOR decodes a tag-10001 request map.
func (r *Request) UnmarshalCBOR(data []byte) error {
	m, err := decodeTaggedMap(data, manycbor.TagRequestMessage)
	if err != nil {
		return err
	}
	if raw, ok := m[fieldVersion]; ok {
		if err := manycbor.Unmarshal(raw, &r.Version); err != nil {
			return err
		}
	}
	if raw, ok := m[fieldFrom]; ok {
		var ib manycbor.IdentityBytes
		if err := manycbor.Unmarshal(raw, &ib); err != nil {
			return err
		}
		id, err := identity.FromBytes(ib)
		if err != nil {
			return err
		}
		r.From = &id
	}
	raw, ok := m[fieldTo]
	if !ok {
		return errMissingField("to")
	}
	var ib manycbor.IdentityBytes
	if err := manycbor.Unmarshal(raw, &ib); err != nil {
		return err
	}
	to, err := identity.FromBytes(ib)
	if err != nil {
		return err
	}
	r.To = to

	if raw, ok := m[fieldMethod]; ok {
		if err := manycbor.Unmarshal(raw, &r.Method); err != nil {
			return err
		}
	}
	if raw, ok := m[fieldData]; ok {
		if err := manycbor.Unmarshal(raw, &r.Data); err != nil {
			return err
		}
	}
	if raw, ok := m[fieldTimestamp]; ok {
		var et manycbor.EpochTime
		if err := manycbor.Unmarshal(raw, &et); err != nil {
			return err
		}
		v := uint64(et)
		r.Timestamp = &v
	}
	if raw, ok := m[fieldID]; ok {
		var v uint64
		if err := manycbor.Unmarshal(raw, &v); err != nil {
			return err
		}
		r.ID = &v
	}
	if raw, ok := m[fieldAttributes]; ok {
		if err := manycbor.Unmarshal(raw, &r.Attributes); err != nil {
			return err
		}
	}
	return nil
}

// MarshalCBOR encodes a Response as a tag-10002 map, per spec.md §4.D/§6.
func (r *Response) MarshalCBOR() ([]byte, error) {
	m := map[int]cbor.RawMessage{}
	if r.Version != 0 {
		putRaw(m, fieldVersion, r.Version)
	}
	if !r.From.IsAnonymous() {
		putRaw(m, fieldFrom, manycbor.IdentityBytes(r.From.ToBytes()))
	}
	if r.To != nil && !r.To.IsAnonymous() {
		putRaw(m, fieldTo, manycbor.IdentityBytes(r.To.ToBytes()))
	}
	if r.Data.IsErr() {
		putRaw(m, fieldError, *r.Data.Err)
	} else {
		putRaw(m, fieldData, r.Data.Ok)
	}
	if r.Timestamp != nil {
		putRaw(m, fieldTimestamp, manycbor.EpochTime(*r.Timestamp))
	}
	if r.ID != nil {
		putRaw(m, fieldID, *r.ID)
	}
	if len(r.Attributes) > 0 {
		putRaw(m, fieldAttributes, r.Attributes)
	}
	tagged := cbor.Tag{Number: manycbor.TagResponseMessage, Content: m}
	return manycbor.EncMode.Marshal(tagged)
}

// UnmarshalCBOR decodes a tag-10002 response map.
func (r *Response) UnmarshalCBOR(data []byte) error {
	m, err := decodeTaggedMap(data, manycbor.TagResponseMessage)
	if err != nil {
		return err
	}
	if raw, ok := m[fieldVersion]; ok {
		if err := manycbor.Unmarshal(raw, &r.Version); err != nil {
			return err
		}
	}
	if raw, ok := m[fieldFrom]; ok {
		var ib manycbor.IdentityBytes
		if err := manycbor.Unmarshal(raw, &ib); err != nil {
			return err
		}
		from, err := identity.FromBytes(ib)
		if err != nil {
			return err
		}
		r.From = from
	} else {
		r.From = identity.Anonymous
	}
	if raw, ok := m[fieldTo]; ok {
		var ib manycbor.IdentityBytes
		if err := manycbor.Unmarshal(raw, &ib); err != nil {
			return err
		}
		to, err := identity.FromBytes(ib)
		if err != nil {
			return err
		}
		r.To = &to
	}

	rawErr, hasErr := m[fieldError]
	rawData, hasData := m[fieldData]
	switch {
	case hasErr:
		var e protoerr.Error
		if err := manycbor.Unmarshal(rawErr, &e); err != nil {
			return err
		}
		r.Data = Err(e)
	case hasData:
		var d []byte
		if err := manycbor.Unmarshal(rawData, &d); err != nil {
			return err
		}
		r.Data = Ok(d)
	}

	if raw, ok := m[fieldTimestamp]; ok {
		var et manycbor.EpochTime
		if err := manycbor.Unmarshal(raw, &et); err != nil {
			return err
		}
		v := uint64(et)
		r.Timestamp = &v
	}
	if raw, ok := m[fieldID]; ok {
		var v uint64
		if err := manycbor.Unmarshal(raw, &v); err != nil {
			return err
		}
		r.ID = &v
	}
	if raw, ok := m[fieldAttributes]; ok {
		if err := manycbor.Unmarshal(raw, &r.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func putRaw(m map[int]cbor.RawMessage, key int, v interface{}) {
	raw, err := manycbor.Marshal(v)
	if err != nil {
		panic(err) // programmer error: v must always be CBOR-encodable
	}
	m[key] = raw
}

func decodeTaggedMap(data []byte, wantTag uint64) (map[int]cbor.RawMessage, error) {
	var tag cbor.Tag
	if err := manycbor.DecMode.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	if tag.Number != wantTag {
		return nil, errWrongTag(wantTag, tag.Number)
	}
	raw, err := manycbor.Marshal(tag.Content)
	if err != nil {
		return nil, err
	}
	m := map[int]cbor.RawMessage{}
	if err := manycbor.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type errMissingField string

func (e errMissingField) Error() string { return "message: missing required field " + string(e) }

type errWrongTagType struct {
	want, got uint64
}

func (e errWrongTagType) Error() string { return "message: unexpected CBOR tag number" }

func errWrongTag(want, got uint64) error { return errWrongTagType{want, got} }
