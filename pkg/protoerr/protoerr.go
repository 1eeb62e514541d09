// Copyright 2025 Certen Protocol
//
// Package protoerr implements the structured error taxonomy: numeric code
// ranges, templated messages with named-field substitution, and the
// built-in template registry for core protocol errors.
package protoerr

import (
	"fmt"
	"sort"
	"strings"
)

// Error is the wire-carried structured error: {code, message?, fields?}.
type Error struct {
	Code    uint32            `cbor:"0,keyasint"`
	Message string            `cbor:"1,keyasint,omitempty"`
	Fields  map[string]string `cbor:"2,keyasint,omitempty"`
}

func (e Error) Error() string {
	return Format(e)
}

// Equal compares by (code, message, fields) per spec.md §4.E.
func (e Error) Equal(other Error) bool {
	if e.Code != other.Code || e.Message != other.Message {
		return false
	}
	if len(e.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range e.Fields {
		if other.Fields[k] != v {
			return false
		}
	}
	return true
}

// Code ranges, per spec.md §3/§7.
const (
	RangeTransportMax  = 999
	RangeRequestMin    = 1000
	RangeRequestMax    = 1999
	RangeInternalMin   = 2000
	RangeInternalMax   = 2999
	ApplicationDivisor = 10000
)

// Reserved transport/serialization codes (0-999).
const (
	CodeDeserialization uint32 = 2
)

// Reserved request-level codes (1000-1999).
const (
	CodeUnknownMethod           uint32 = 1000
	CodeInvalidFromIdentity     uint32 = 1001
	CodeCouldNotVerifySignature uint32 = 1002
	CodeUnknownDestination      uint32 = 1003
	CodeEmptyEnvelope           uint32 = 1004
	CodeInvalidMethodName       uint32 = 1005
)

// Reserved server-internal code (2000-2999).
const (
	CodeInternal uint32 = 2000
)

// New builds a structured Error with the built-in template for code (if
// known) expanded against fields into Message; a code with no built-in
// template gets the generic "invalid error code" text.
func New(code uint32, fields map[string]string) Error {
	return Error{Code: code, Fields: fields, Message: Format(Error{Code: code, Fields: fields})}
}

// WithMessage builds an application-defined error. Per spec.md §3, codes
// >= 10000 with a non-zero attribute id MUST carry an explicit message.
func WithMessage(code uint32, message string, fields map[string]string) Error {
	return Error{Code: code, Message: message, Fields: fields}
}

// ApplicationCode composes an application-specific error code from an
// attribute id and a local code, per spec.md §3/§4.E.
func ApplicationCode(attributeID, local uint32) uint32 {
	return attributeID*ApplicationDivisor + local
}

// AttributeOf extracts the attribute id embedded in an application code,
// or 0 if code is below the application range.
func AttributeOf(code uint32) uint32 {
	if code < ApplicationDivisor {
		return 0
	}
	return code / ApplicationDivisor
}

var builtinTemplates = map[uint32]string{
	CodeDeserialization:         "could not deserialize message: {reason}",
	CodeUnknownMethod:           "unknown method {method}",
	CodeInvalidFromIdentity:     "invalid `from` identity {from}",
	CodeCouldNotVerifySignature: "could not verify the envelope signature",
	CodeUnknownDestination:      "unknown destination {to} (this server is {this})",
	CodeEmptyEnvelope:           "envelope payload is empty",
	// spec.md §9: the original source's template for this code was
	// truncated; this registry carries the completed text instead of
	// propagating the truncation.
	CodeInvalidMethodName: "invalid method name: {method}",
	CodeInternal:          "internal server error",
}

const unknownCodeTemplate = "invalid error code"

// Format expands `{name}` placeholders in the error's template (or its
// explicit Message, if set) against Fields. `{{` and `}}` render as
// literal braces; unknown placeholders expand to empty.
func Format(e Error) string {
	template := e.Message
	if template == "" {
		if t, ok := builtinTemplates[e.Code]; ok {
			template = t
		} else if AttributeOf(e.Code) == 0 {
			template = unknownCodeTemplate
		} else {
			// application code with fields but no message: fall back to
			// the generic template since no application message is known
			// to this registry.
			template = unknownCodeTemplate
		}
	}
	return expandBraces(template, e.Fields)
}

func expandBraces(template string, fields map[string]string) string {
	var sb strings.Builder
	runes := []rune(template)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				sb.WriteRune('{')
				i++
				continue
			}
			end := i + 1
			for end < len(runes) && runes[end] != '}' {
				end++
			}
			if end >= len(runes) {
				sb.WriteString(string(runes[i:]))
				i = len(runes)
				break
			}
			name := string(runes[i+1 : end])
			sb.WriteString(fields[name]) // unknown name -> ""
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				sb.WriteRune('}')
				i++
				continue
			}
			sb.WriteRune('}')
		default:
			sb.WriteRune(runes[i])
		}
	}
	return sb.String()
}

// SortedFieldNames is a small helper for deterministic test/debug output.
func SortedFieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Constructor helpers mirroring the macro-style pattern named in spec.md §4.E.

func ErrUnknownMethod(method string) Error {
	return New(CodeUnknownMethod, map[string]string{"method": method})
}

func ErrInvalidFromIdentity(from string) Error {
	return New(CodeInvalidFromIdentity, map[string]string{"from": from})
}

func ErrCouldNotVerifySignature() Error {
	return New(CodeCouldNotVerifySignature, nil)
}

func ErrUnknownDestination(this, to string) Error {
	return New(CodeUnknownDestination, map[string]string{"this": this, "to": to})
}

func ErrEmptyEnvelope() Error {
	return New(CodeEmptyEnvelope, nil)
}

func ErrInvalidMethodName(method string) Error {
	return New(CodeInvalidMethodName, map[string]string{"method": method})
}

func ErrDeserialization(reason string) Error {
	return New(CodeDeserialization, map[string]string{"reason": reason})
}

func ErrInternal(reason string) Error {
	return Error{Code: CodeInternal, Message: fmt.Sprintf("internal server error: %s", reason)}
}
