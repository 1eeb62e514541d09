// Copyright 2025 Certen Protocol

package ledger

import "github.com/certenio/manynet/pkg/protoerr"

// AttributeID is this module's advertised attribute id, matching the
// original many-ledger's `LEDGER_ATTRIBUTE` of 2, kept unchanged so a
// deployment tracking application error codes by attribute id needs no
// renumbering.
const AttributeID = 2

// Local application error codes, composed with AttributeID via
// protoerr.ApplicationCode.
const (
	codeUnknownSymbol = iota + 1
	codeUnknownToken
	codeAnonymousCannotHoldFunds
	codeInsufficientFunds
	codeUnauthorized
	codeSameSourceAndDestination
	codeMaximumSupplyExceeded
	codeInvalidInitialState
	codeZeroAmount
)

func errUnknownSymbol(symbol string) protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnknownSymbol),
		"unknown symbol "+symbol, map[string]string{"symbol": symbol})
}

func errUnknownToken(symbol string) protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnknownToken),
		"unknown token "+symbol, map[string]string{"symbol": symbol})
}

func errAnonymousCannotHoldFunds() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeAnonymousCannotHoldFunds),
		"anonymous identity cannot hold funds", nil)
}

func errInsufficientFunds() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeInsufficientFunds),
		"insufficient funds", nil)
}

func errUnauthorized() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnauthorized),
		"unauthorized", nil)
}

func errSameSourceAndDestination() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeSameSourceAndDestination),
		"source and destination are the same", nil)
}

func errMaximumSupplyExceeded() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeMaximumSupplyExceeded),
		"minting this amount would exceed the token's maximum supply", nil)
}

func errInvalidInitialState(expected, actual string) protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeInvalidInitialState),
		"invalid initial state: expected hash "+expected+", got "+actual,
		map[string]string{"expected": expected, "actual": actual})
}

func errZeroAmount() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeZeroAmount),
		"amount must be nonzero", nil)
}
