// Copyright 2025 Certen Protocol

package account

import (
	"context"
	"time"

	"github.com/certenio/manynet/pkg/bridge"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/modules/ledger"
	"github.com/certenio/manynet/pkg/protoerr"
)

// endpoints advertised under the "account" namespace, grounded on
// original_source's many-kvstore/src/module.rs init() account.* section
// plus the account.multisig* method names used by
// ledger/src/multisig.rs's CLI client calls.
var endpoints = []string{
	"account.create", "account.setDescription", "account.listRoles", "account.getRoles",
	"account.addRoles", "account.removeRoles", "account.info", "account.disable",
	"account.addFeatures",
	"account.multisigSubmitTransaction", "account.multisigApprove", "account.multisigRevoke",
	"account.multisigExecute", "account.multisigWithdraw", "account.multisigInfo",
	"account.multisigSetDefaults",
}

// commands mirrors the original's is_command split: mutating account
// management and every multisig lifecycle operation except the
// read-only multisigInfo are commands.
var commands = map[string]bool{
	"account.create":                    true,
	"account.setDescription":            true,
	"account.listRoles":                 false,
	"account.getRoles":                  false,
	"account.addRoles":                  true,
	"account.removeRoles":               true,
	"account.info":                      false,
	"account.disable":                   true,
	"account.addFeatures":               true,
	"account.multisigSubmitTransaction": true,
	"account.multisigApprove":           true,
	"account.multisigRevoke":            true,
	"account.multisigExecute":           true,
	"account.multisigWithdraw":          true,
	"account.multisigInfo":              false,
	"account.multisigSetDefaults":       true,
}

// Module implements dispatch.Module and dispatch.CommandClassifier for
// the account namespace.
type Module struct {
	storage *Storage
}

// NewModule constructs an account Module. ledgerStorage may be nil if
// the node never enables the ledger feature; multisig-submitted Send
// transactions will then fail with errUnauthorized at execution time.
func NewModule(server identity.Identity, store *kvstore.Store, ledgerStorage *ledger.Storage) *Module {
	return &Module{storage: NewStorage(server, store, ledgerStorage)}
}

// RegisterWith binds this module's multisig-expiry sweep to app's
// end_block hook, per spec.md §5 ("Multisig timeouts are checked in
// end_block"). Call once during node startup, after both the module and
// the bridge App exist.
func (m *Module) RegisterWith(app *bridge.App) {
	app.RegisterEndBlockHook(func(ctx context.Context, height uint64, blockTime time.Time) error {
		return m.storage.ExpireTimedOutTransactions(blockTime)
	})
}

func (m *Module) Info() message.ModuleInfo {
	return message.ModuleInfo{
		Name:       "account",
		Attributes: []message.AttributeSpec{{ID: AttributeID}},
		Endpoints:  endpoints,
	}
}

func (m *Module) IsCommand(method string) bool { return commands[method] }

func decode(data []byte, v interface{}) error {
	if err := manycbor.Unmarshal(data, v); err != nil {
		return protoerr.ErrDeserialization(err.Error())
	}
	return nil
}

func encode(v interface{}) (message.Either, error) {
	data, err := manycbor.Marshal(v)
	if err != nil {
		return message.Either{}, protoerr.ErrInternal(err.Error())
	}
	return message.Ok(data), nil
}

func (m *Module) Validate(ctx context.Context, req *message.Request) error {
	switch req.Method {
	case "account.create":
		var args CreateArgs
		return decode(req.Data, &args)
	case "account.setDescription":
		var args SetDescriptionArgs
		return decode(req.Data, &args)
	case "account.listRoles":
		var args ListRolesArgs
		return decode(req.Data, &args)
	case "account.getRoles":
		var args GetRolesArgs
		return decode(req.Data, &args)
	case "account.addRoles":
		var args AddRolesArgs
		return decode(req.Data, &args)
	case "account.removeRoles":
		var args RemoveRolesArgs
		return decode(req.Data, &args)
	case "account.info":
		var args InfoArgs
		return decode(req.Data, &args)
	case "account.disable":
		var args DisableArgs
		return decode(req.Data, &args)
	case "account.addFeatures":
		var args AddFeaturesArgs
		return decode(req.Data, &args)
	case "account.multisigSubmitTransaction":
		var args SubmitTransactionArgs
		return decode(req.Data, &args)
	case "account.multisigApprove":
		var args ApproveArgs
		return decode(req.Data, &args)
	case "account.multisigRevoke":
		var args RevokeArgs
		return decode(req.Data, &args)
	case "account.multisigExecute":
		var args ExecuteArgs
		return decode(req.Data, &args)
	case "account.multisigWithdraw":
		var args WithdrawArgs
		return decode(req.Data, &args)
	case "account.multisigInfo":
		var args MultisigInfoArgs
		return decode(req.Data, &args)
	case "account.multisigSetDefaults":
		var args SetDefaultsArgs
		return decode(req.Data, &args)
	default:
		return protoerr.ErrUnknownMethod(req.Method)
	}
}

// blockTime resolves the current block time from the bridge context,
// falling back to wall-clock time outside blockchain mode (e.g. the
// direct-submission local node, whose block context is still threaded
// through by the bridge per spec.md §5).
func blockTime(ctx context.Context) time.Time {
	if bc, ok := bridge.BlockContextFrom(ctx); ok {
		return bc.Time
	}
	return time.Now()
}

func (m *Module) Execute(ctx context.Context, req *message.Request) (message.Either, error) {
	caller := req.EffectiveFrom()
	now := blockTime(ctx)
	switch req.Method {
	case "account.create":
		var args CreateArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		account, err := m.storage.CreateAccount(caller, args)
		if err != nil {
			return message.Either{}, err
		}
		return encode(CreateReturns{Account: account})

	case "account.setDescription":
		var args SetDescriptionArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.SetDescription(caller, args.Account, args.Description); err != nil {
			return message.Either{}, err
		}
		return encode(SetDescriptionReturns{})

	case "account.listRoles":
		var args ListRolesArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		roles, err := m.storage.ListRoles(args.Account)
		if err != nil {
			return message.Either{}, err
		}
		return encode(ListRolesReturns{Roles: roles})

	case "account.getRoles":
		var args GetRolesArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		roles, err := m.storage.GetRoles(args.Account, args.Identities)
		if err != nil {
			return message.Either{}, err
		}
		return encode(GetRolesReturns{Roles: roles})

	case "account.addRoles":
		var args AddRolesArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.AddRoles(caller, args.Account, args.Roles); err != nil {
			return message.Either{}, err
		}
		return encode(AddRolesReturns{})

	case "account.removeRoles":
		var args RemoveRolesArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.RemoveRoles(caller, args.Account, args.Roles); err != nil {
			return message.Either{}, err
		}
		return encode(RemoveRolesReturns{})

	case "account.info":
		var args InfoArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		info, err := m.storage.Info(args.Account)
		if err != nil {
			return message.Either{}, err
		}
		return encode(info)

	case "account.disable":
		var args DisableArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Disable(caller, args.Account); err != nil {
			return message.Either{}, err
		}
		return encode(DisableReturns{})

	case "account.addFeatures":
		var args AddFeaturesArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.AddFeatures(caller, args.Account, args.Features); err != nil {
			return message.Either{}, err
		}
		return encode(AddFeaturesReturns{})

	case "account.multisigSubmitTransaction":
		var args SubmitTransactionArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		token, _, err := m.storage.SubmitTransaction(caller, now, args)
		if err != nil {
			return message.Either{}, err
		}
		return encode(SubmitTransactionReturns{Token: token})

	case "account.multisigApprove":
		var args ApproveArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		executed, err := m.storage.Approve(caller, now, args.Token)
		if err != nil {
			return message.Either{}, err
		}
		return encode(ApproveReturns{Executed: executed})

	case "account.multisigRevoke":
		var args RevokeArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Revoke(caller, now, args.Token); err != nil {
			return message.Either{}, err
		}
		return encode(RevokeReturns{})

	case "account.multisigExecute":
		var args ExecuteArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Execute(caller, now, args.Token); err != nil {
			return message.Either{}, err
		}
		return encode(ExecuteReturns{})

	case "account.multisigWithdraw":
		var args WithdrawArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Withdraw(caller, now, args.Token); err != nil {
			return message.Either{}, err
		}
		return encode(WithdrawReturns{})

	case "account.multisigInfo":
		var args MultisigInfoArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		tx, err := m.storage.MultisigInfo(now, args.Token)
		if err != nil {
			return message.Either{}, err
		}
		return encode(MultisigInfoReturns{
			Account:              tx.Account,
			Memo:                 tx.Memo,
			Transaction:          tx.Transaction,
			Submitter:            tx.Submitter,
			Approvers:            tx.Approvers,
			Threshold:            tx.Threshold,
			ExecuteAutomatically: tx.ExecuteAutomatically,
			State:                tx.State,
		})

	case "account.multisigSetDefaults":
		var args SetDefaultsArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.SetDefaults(caller, args); err != nil {
			return message.Either{}, err
		}
		return encode(SetDefaultsReturns{})

	default:
		return message.Either{}, protoerr.ErrUnknownMethod(req.Method)
	}
}
