// Copyright 2025 Certen Protocol

package account

import "github.com/certenio/manynet/pkg/protoerr"

// AttributeID is this module's advertised attribute id.
const AttributeID = 9

const (
	codeUnknownAccount = iota + 1
	codeAccountDisabled
	codeUserNeedsRole
	codeUnknownTransaction
	codeWrongTransactionState
	codeUnauthorized
	codeAlreadyApproved
	codeNotApproved
	codeThresholdNotMet
)

func errUnknownAccount(account string) protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnknownAccount),
		"unknown account "+account, map[string]string{"account": account})
}

func errAccountDisabled() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeAccountDisabled),
		"account is disabled", nil)
}

func errUserNeedsRole() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUserNeedsRole),
		"sender does not have the required role on this account", nil)
}

func errUnknownTransaction() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnknownTransaction),
		"unknown multisig transaction", nil)
}

func errWrongTransactionState() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeWrongTransactionState),
		"transaction is not in a state that allows this operation", nil)
}

func errUnauthorized() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeUnauthorized),
		"sender is not authorized to perform this operation", nil)
}

func errAlreadyApproved() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeAlreadyApproved),
		"sender has already approved this transaction", nil)
}

func errNotApproved() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeNotApproved),
		"sender has not approved this transaction", nil)
}

func errThresholdNotMet() protoerr.Error {
	return protoerr.WithMessage(protoerr.ApplicationCode(AttributeID, codeThresholdNotMet),
		"approval threshold has not been met", nil)
}
