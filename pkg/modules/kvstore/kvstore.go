// Copyright 2025 Certen Protocol

package kvstore

import (
	"context"

	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/message"
	"github.com/certenio/manynet/pkg/protoerr"
)

var endpoints = []string{"kvstore.info", "kvstore.get", "kvstore.put", "kvstore.disable", "kvstore.query"}

var commands = map[string]bool{
	"kvstore.info":    false,
	"kvstore.get":     false,
	"kvstore.put":     true,
	"kvstore.disable": true,
	"kvstore.query":   false,
}

// Module implements dispatch.Module + dispatch.CommandClassifier for the
// "kvstore" namespace.
type Module struct {
	storage *Storage
}

func NewModule(store *kvstore.Store) *Module {
	return &Module{storage: NewStorage(store)}
}

func (m *Module) Info() message.ModuleInfo {
	return message.ModuleInfo{
		Name:       "kvstore",
		Attributes: []message.AttributeSpec{{ID: AttributeID}},
		Endpoints:  endpoints,
	}
}

func (m *Module) IsCommand(method string) bool { return commands[method] }

func (m *Module) Validate(ctx context.Context, req *message.Request) error {
	switch req.Method {
	case "kvstore.info":
		return nil
	case "kvstore.get":
		var args GetArgs
		return decode(req.Data, &args)
	case "kvstore.put":
		var args PutArgs
		return decode(req.Data, &args)
	case "kvstore.disable":
		var args DisableArgs
		return decode(req.Data, &args)
	case "kvstore.query":
		var args QueryArgs
		return decode(req.Data, &args)
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

func (m *Module) Execute(ctx context.Context, req *message.Request) (message.Either, error) {
	caller := req.EffectiveFrom()
	switch req.Method {
	case "kvstore.info":
		return encode(InfoReturns{Hash: m.storage.Hash()})
	case "kvstore.get":
		var args GetArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		value, err := m.storage.Get(args.Key)
		if err != nil {
			return message.Either{}, err
		}
		return encode(GetReturns{Value: value})
	case "kvstore.put":
		var args PutArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Put(caller, args.Key, args.Value, args.AlternativeOwner); err != nil {
			return message.Either{}, err
		}
		return encode(PutReturns{})
	case "kvstore.disable":
		var args DisableArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		if err := m.storage.Disable(caller, args.Key, args.AlternativeOwner, args.Reason); err != nil {
			return message.Either{}, err
		}
		return encode(DisableReturns{})
	case "kvstore.query":
		var args QueryArgs
		if err := decode(req.Data, &args); err != nil {
			return message.Either{}, err
		}
		returns, err := m.storage.Query(args.Key)
		if err != nil {
			return message.Either{}, err
		}
		return encode(returns)
	default:
		return message.Either{}, protoerr.ErrUnknownMethod(req.Method)
	}
}
