// Copyright 2025 Certen Protocol

package account

import (
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/modules/ledger"
)

// Role is a capability grantable to an identity on an account, grounded
// on original_source's many_modules::account::Role and the
// CanLedgerTransact role spec.md §4.M names directly.
type Role string

const (
	RoleOwner              Role = "owner"
	RoleCanLedgerTransact  Role = "canLedgerTransact"
	RoleCanKvStoreWrite    Role = "canKvStoreWrite"
	RoleCanKvStoreDisable  Role = "canKvStoreDisable"
	RoleCanMultisigSubmit  Role = "canMultisigSubmit"
	RoleCanMultisigApprove Role = "canMultisigApprove"
)

// Feature is one of the account capabilities spec.md §4.O names.
type Feature string

const (
	FeatureLedger   Feature = "ledger"
	FeatureKvStore  Feature = "kvstore"
	FeatureTokens   Feature = "tokens"
	FeatureMultisig Feature = "multisig"
)

// MultisigState is one node of spec.md §4.O's state machine.
type MultisigState string

const (
	StatePending              MultisigState = "pending"
	StateExecutedAutomatically MultisigState = "executedAutomatically"
	StateExecutedManually     MultisigState = "executedManually"
	StateWithdrawn            MultisigState = "withdrawn"
	StateExpired              MultisigState = "expired"
)

func (s MultisigState) terminal() bool {
	return s == StateExecutedAutomatically || s == StateExecutedManually ||
		s == StateWithdrawn || s == StateExpired
}

// CreateArgs creates a new account, a subresource identity of the server.
type CreateArgs struct {
	Description string              `cbor:"0,keyasint,omitempty"`
	Roles       map[string][]Role   `cbor:"1,keyasint,omitempty"`
	Features    []Feature           `cbor:"2,keyasint,omitempty"`
}

type CreateReturns struct {
	Account identity.Identity `cbor:"0,keyasint"`
}

type SetDescriptionArgs struct {
	Account     identity.Identity `cbor:"0,keyasint"`
	Description string            `cbor:"1,keyasint"`
}

type SetDescriptionReturns struct{}

type ListRolesArgs struct {
	Account identity.Identity `cbor:"0,keyasint"`
}

type ListRolesReturns struct {
	Roles []Role `cbor:"0,keyasint"`
}

type GetRolesArgs struct {
	Account   identity.Identity   `cbor:"0,keyasint"`
	Identities []identity.Identity `cbor:"1,keyasint"`
}

type GetRolesReturns struct {
	Roles map[string][]Role `cbor:"0,keyasint"`
}

type AddRolesArgs struct {
	Account identity.Identity `cbor:"0,keyasint"`
	Roles   map[string][]Role `cbor:"1,keyasint"`
}

type AddRolesReturns struct{}

type RemoveRolesArgs struct {
	Account identity.Identity `cbor:"0,keyasint"`
	Roles   map[string][]Role `cbor:"1,keyasint"`
}

type RemoveRolesReturns struct{}

type InfoArgs struct {
	Account identity.Identity `cbor:"0,keyasint"`
}

type InfoReturns struct {
	Description string            `cbor:"0,keyasint,omitempty"`
	Roles       map[string][]Role `cbor:"1,keyasint,omitempty"`
	Features    []Feature         `cbor:"2,keyasint,omitempty"`
	Disabled    bool              `cbor:"3,keyasint"`
}

type DisableArgs struct {
	Account identity.Identity `cbor:"0,keyasint"`
}

type DisableReturns struct{}

type AddFeaturesArgs struct {
	Account  identity.Identity `cbor:"0,keyasint"`
	Features []Feature         `cbor:"1,keyasint"`
}

type AddFeaturesReturns struct{}

// SendTransaction is the "Send" variant of
// original_source's AccountMultisigTransaction enum.
type SendTransaction struct {
	From   *identity.Identity `cbor:"0,keyasint,omitempty"`
	To     identity.Identity  `cbor:"1,keyasint"`
	Symbol identity.Identity  `cbor:"2,keyasint"`
	Amount ledger.Amount      `cbor:"3,keyasint"`
}

// SetDefaultsTransaction is the "AccountMultisigSetDefaults" variant.
type SetDefaultsTransaction struct {
	Account              identity.Identity `cbor:"0,keyasint"`
	Threshold            *uint64           `cbor:"1,keyasint,omitempty"`
	TimeoutInSecs         *uint64           `cbor:"2,keyasint,omitempty"`
	ExecuteAutomatically *bool             `cbor:"3,keyasint,omitempty"`
}

// Transaction is the tagged union of multisig transaction kinds a
// submitted token can carry. Simplified from the original's open-ended
// AccountMultisigTransaction enum (which also covers account
// create/addRoles/etc as multisig-executable actions) to the two kinds
// spec.md's examples exercise.
type Transaction struct {
	Send        *SendTransaction        `cbor:"0,keyasint,omitempty"`
	SetDefaults *SetDefaultsTransaction `cbor:"1,keyasint,omitempty"`
}

// SubmitTransactionArgs submits a new multisig transaction for approval.
type SubmitTransactionArgs struct {
	Account              identity.Identity `cbor:"0,keyasint"`
	Memo                 *string           `cbor:"1,keyasint,omitempty"`
	Transaction          Transaction       `cbor:"2,keyasint"`
	Threshold            *uint64           `cbor:"3,keyasint,omitempty"`
	TimeoutInSecs         *uint64           `cbor:"4,keyasint,omitempty"`
	ExecuteAutomatically *bool             `cbor:"5,keyasint,omitempty"`
}

type SubmitTransactionReturns struct {
	Token []byte `cbor:"0,keyasint"`
}

type ApproveArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type ApproveReturns struct {
	Executed bool `cbor:"0,keyasint"`
}

type RevokeArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type RevokeReturns struct{}

type ExecuteArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type ExecuteReturns struct{}

type WithdrawArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type WithdrawReturns struct{}

type MultisigInfoArgs struct {
	Token []byte `cbor:"0,keyasint"`
}

type MultisigInfoReturns struct {
	Account              identity.Identity  `cbor:"0,keyasint"`
	Memo                 *string            `cbor:"1,keyasint,omitempty"`
	Transaction          Transaction        `cbor:"2,keyasint"`
	Submitter            identity.Identity  `cbor:"3,keyasint"`
	Approvers            map[string]bool    `cbor:"4,keyasint"`
	Threshold            uint64             `cbor:"5,keyasint"`
	ExecuteAutomatically bool               `cbor:"6,keyasint"`
	State                MultisigState      `cbor:"7,keyasint"`
}

type SetDefaultsArgs struct {
	Account              identity.Identity `cbor:"0,keyasint"`
	Threshold            *uint64           `cbor:"1,keyasint,omitempty"`
	TimeoutInSecs         *uint64           `cbor:"2,keyasint,omitempty"`
	ExecuteAutomatically *bool             `cbor:"3,keyasint,omitempty"`
}

type SetDefaultsReturns struct{}
