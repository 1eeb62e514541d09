// Copyright 2025 Certen Protocol

package ledger

import (
	"context"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/protoerr"
)

// endpoints advertised under both the "ledger" and "tokens" wire
// namespaces, grounded on original_source's LEDGER_ATTRIBUTE endpoint
// list (omni-ledger/src/module.rs) plus src/ledger/src/tokens.rs's CLI
// surface, which lives in the same crate.
var endpoints = []string{
	"ledger.info", "ledger.balance", "ledger.send", "ledger.mint", "ledger.burn",
	"tokens.create", "tokens.update", "tokens.info",
	"tokens.addExtendedInfo", "tokens.removeExtendedInfo",
}

// commands marks which endpoints mutate storage, matching the original's
// `init` endpoint map (info/balance: false; mint/burn/send: true) and
// extending the same command/query split across the tokens.* endpoints.
var commands = map[string]bool{
	"ledger.info":               false,
	"ledger.balance":            false,
	"ledger.send":               true,
	"ledger.mint":               true,
	"ledger.burn":               true,
	"tokens.create":             true,
	"tokens.update":             true,
	"tokens.info":               false,
	"tokens.addExtendedInfo":    true,
	"tokens.removeExtendedInfo": true,
}

// Module implements dispatch.Module (and dispatch.CommandClassifier) for
// the ledger and tokens namespaces, both served by one instance per
// spec.md §4.M — tokens.* is the token-metadata half of the same ledger
// state tokens.rs manages in the original.
type Module struct {
	storage *Storage
}

// NewModule constructs a ledger Module bound to the shared store.
func NewModule(server identity.Identity, store *kvstore.Store) *Module {
	return &Module{storage: NewStorage(server, store)}
}

// Info advertises the module's endpoints and its single LEDGER_ATTRIBUTE.
func (m *Module) Info() message.ModuleInfo {
	return message.ModuleInfo{
		Name:       "ledger",
		Attributes: []message.AttributeSpec{{ID: AttributeID}},
		Endpoints:  endpoints,
	}
}

// IsCommand implements dispatch.CommandClassifier.
func (m *Module) IsCommand(method string) bool { return commands[method] }

// Validate runs structural checks before a command is admitted to the
// mempool (spec.md §4.L), decoding args to confirm the referenced symbol
// is well-formed where relevant. Full existence/authorization checks run
// again in Execute since storage state may change between check and
// deliver.
func (m *Module) Validate(ctx context.Context, req *message.Request) error {
	switch req.Method {
	case "ledger.send":
		var args SendArgs
		return decode(req.Data, &args)
	case "ledger.mint":
		var args MintArgs
		return decode(req.Data, &args)
	case "ledger.burn":
		var args BurnArgs
		return decode(req.Data, &args)
	case "tokens.create":
		var args TokenCreateArgs
		return decode(req.Data, &args)
	case "tokens.update":
		var args TokenUpdateArgs
		return decode(req.Data, &args)
	case "tokens.addExtendedInfo":
		var args TokenAddExtendedInfoArgs
		return decode(req.Data, &args)
	case "tokens.removeExtendedInfo":
		var args TokenRemoveExtendedInfoArgs
		return decode(req.Data, &args)
	case "ledger.info", "ledger.balance", "tokens.info":
		return nil
	default:
		return protoerr.ErrUnknownMethod(req.Method)
	}
}

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

// Execute dispatches a validated request to its handler.
func (m *Module) Execute(ctx context.Context, req *message.Request) (message.Either, error) {
	caller := req.EffectiveFrom()
	switch req.Method {
	case "ledger.info":
		return m.info()
	case "ledger.balance":
		return m.balance(req, caller)
	case "ledger.send":
		return m.send(req, caller)
	case "ledger.mint":
		return m.mint(req, caller)
	case "ledger.burn":
		return m.burn(req, caller)
	case "tokens.create":
		return m.tokensCreate(req)
	case "tokens.update":
		return m.tokensUpdate(req, caller)
	case "tokens.info":
		return m.tokensInfo(req)
	case "tokens.addExtendedInfo":
		return m.tokensAddExtendedInfo(req, caller)
	case "tokens.removeExtendedInfo":
		return m.tokensRemoveExtendedInfo(req, caller)
	default:
		return message.Either{}, protoerr.ErrUnknownMethod(req.Method)
	}
}

func (m *Module) info() (message.Either, error) {
	symbols, err := m.storage.Symbols()
	if err != nil {
		return message.Either{}, protoerr.ErrInternal(err.Error())
	}
	return encode(InfoReturns{Symbols: symbols, Hash: m.storage.Hash()})
}

func (m *Module) balance(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args BalanceArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	account := caller
	if args.Account != nil {
		account = *args.Account
	}
	balances, err := m.storage.Balances(account, args.Symbols)
	if err != nil {
		return message.Either{}, err
	}
	out := make(map[string]Amount, len(balances))
	for k, v := range balances {
		out[k] = v
	}
	return encode(BalanceReturns{Balances: out})
}

func (m *Module) send(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args SendArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	from := caller
	if args.From != nil {
		from = *args.From
	}
	balance, err := m.storage.Send(from, args.To, args.Symbol, args.Amount)
	if err != nil {
		return message.Either{}, err
	}
	return encode(SendReturns{Balance: balance})
}

func (m *Module) mint(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args MintArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	balance, err := m.storage.Mint(caller, args.To, args.Symbol, args.Amount)
	if err != nil {
		return message.Either{}, err
	}
	return encode(MintReturns{Balance: balance})
}

func (m *Module) burn(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args BurnArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	balance, err := m.storage.Burn(caller, args.To, args.Symbol, args.Amount)
	if err != nil {
		return message.Either{}, err
	}
	return encode(BurnReturns{Balance: balance})
}

func (m *Module) tokensCreate(req *message.Request) (message.Either, error) {
	var args TokenCreateArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	symbol, err := m.storage.CreateToken(args)
	if err != nil {
		return message.Either{}, err
	}
	return encode(TokenCreateReturns{Symbol: symbol})
}

func (m *Module) tokensUpdate(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args TokenUpdateArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	if err := m.storage.UpdateToken(caller, args); err != nil {
		return message.Either{}, err
	}
	return encode(TokenUpdateReturns{})
}

func (m *Module) tokensInfo(req *message.Request) (message.Either, error) {
	var args TokenInfoArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	info, err := m.storage.TokenInfo(args.Symbol)
	if err != nil {
		return message.Either{}, err
	}
	return encode(info)
}

func (m *Module) tokensAddExtendedInfo(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args TokenAddExtendedInfoArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	if err := m.storage.AddExtendedInfo(caller, args.Symbol, args.Key, args.Value); err != nil {
		return message.Either{}, err
	}
	return encode(TokenAddExtendedInfoReturns{})
}

func (m *Module) tokensRemoveExtendedInfo(req *message.Request, caller identity.Identity) (message.Either, error) {
	var args TokenRemoveExtendedInfoArgs
	if err := decode(req.Data, &args); err != nil {
		return message.Either{}, err
	}
	if err := m.storage.RemoveExtendedInfo(caller, args.Symbol, args.Keys); err != nil {
		return message.Either{}, err
	}
	return encode(TokenRemoveExtendedInfoReturns{})
}
