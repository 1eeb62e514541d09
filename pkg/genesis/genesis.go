// Copyright 2025 Certen Protocol
//
// Package genesis loads the node's initial state document (spec.md §6),
// grounded on original_source's many-ledger/src/json.rs
// (InitialStateJson) and the state-hash verification in
// many-ledger/src/module.rs's LedgerModuleImpl::new: a JSON document
// naming the server identity, an initial balance distribution, a
// symbol-address-to-shortname registry, optional account seeds, and an
// optional expected post-apply root hash. It is carried as a thin
// loader the way the teacher's cmd/ loads YAML before constructing core
// objects, not as a long-lived service: cmd/manyd calls Load then Apply
// once, at startup, before the bridge App begins serving requests.
package genesis

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/kvstore"
	"github.com/certenio/manynet/pkg/modules/account"
	"github.com/certenio/manynet/pkg/modules/ledger"
)

// AccountSpec seeds one account, matching original_source's AccountJson.
// Roles and Features are carried as strings (rather than account.Role /
// account.Feature) since they come straight off the wire as JSON; Apply
// converts and validates them.
type AccountSpec struct {
	Description string              `json:"description,omitempty"`
	Roles       map[string][]string `json:"roles,omitempty"`
	Features    []string            `json:"features,omitempty"`
}

// Doc is the genesis state document's schema (spec.md §6, verbatim):
// identity, initial: map<address, map<symbol-or-name, amount>>,
// symbols: map<address, shortname>, optional accounts: [...], optional
// hash: hex root hash expected after applying the initial state.
type Doc struct {
	Identity string                       `json:"identity"`
	Initial  map[string]map[string]string `json:"initial"`
	Symbols  map[string]string            `json:"symbols"`
	Accounts []AccountSpec                `json:"accounts,omitempty"`
	Hash     string                       `json:"hash,omitempty"`
}

// Load reads and parses a genesis document from path.
func Load(path string) (*Doc, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: failed to read %s: %w", path, err)
	}
	var doc Doc
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("genesis: failed to parse %s: %w", path, err)
	}
	return &doc, nil
}

// resolveSymbol finds the symbol identity a token_name in Initial's
// inner map refers to: either its address text directly, or the
// shortname it is registered under in Symbols, mirroring json.rs's
// balances() lookup ("s == token_name || n == token_name").
func resolveSymbol(tokenName string, symbolsByAddress map[string]string) (identity.Identity, error) {
	if _, ok := symbolsByAddress[tokenName]; ok {
		return identity.FromText(tokenName)
	}
	for addr, shortname := range symbolsByAddress {
		if shortname == tokenName {
			return identity.FromText(addr)
		}
	}
	return identity.Identity{}, fmt.Errorf("genesis: could not resolve symbol or name %q", tokenName)
}

// Apply seeds store/ledgerStorage/acctStorage from doc: symbol
// metadata first, then balances, then accounts, then (if doc.Hash is
// set) verifies the resulting authenticated root against it, aborting
// startup on mismatch per spec.md §6.
func Apply(doc *Doc, store *kvstore.Store, ledgerStorage *ledger.Storage, acctStorage *account.Storage) error {
	for addrText, shortname := range doc.Symbols {
		symbol, err := identity.FromText(addrText)
		if err != nil {
			return fmt.Errorf("genesis: invalid symbol address %q: %w", addrText, err)
		}
		summary := ledger.TokenSummary{Name: shortname, Ticker: shortname}
		if err := ledgerStorage.SeedToken(symbol, summary); err != nil {
			return fmt.Errorf("genesis: seeding symbol %q: %w", addrText, err)
		}
	}

	for addrText, byTokenName := range doc.Initial {
		owner, err := identity.FromText(addrText)
		if err != nil {
			return fmt.Errorf("genesis: invalid account address %q: %w", addrText, err)
		}
		for tokenName, amountText := range byTokenName {
			symbol, err := resolveSymbol(tokenName, doc.Symbols)
			if err != nil {
				return err
			}
			amount, err := ledger.FromDecimalString(amountText)
			if err != nil {
				return fmt.Errorf("genesis: balance for %q/%q: %w", addrText, tokenName, err)
			}
			if err := ledgerStorage.SeedBalance(owner, symbol, amount); err != nil {
				return fmt.Errorf("genesis: seeding balance for %q/%q: %w", addrText, tokenName, err)
			}
		}
	}

	for i, spec := range doc.Accounts {
		args, err := spec.toCreateArgs()
		if err != nil {
			return fmt.Errorf("genesis: account #%d: %w", i, err)
		}
		if _, err := acctStorage.SeedAccount(args); err != nil {
			return fmt.Errorf("genesis: account #%d: %w", i, err)
		}
	}

	if doc.Hash != "" {
		want, err := hex.DecodeString(doc.Hash)
		if err != nil {
			return fmt.Errorf("genesis: invalid hash %q: %w", doc.Hash, err)
		}
		got := store.Root()
		if hex.EncodeToString(got) != hex.EncodeToString(want) {
			return fmt.Errorf("genesis: root hash mismatch: declared %s, computed %s",
				doc.Hash, hex.EncodeToString(got))
		}
	}

	return nil
}

func (spec AccountSpec) toCreateArgs() (account.CreateArgs, error) {
	roles := make(map[string][]account.Role, len(spec.Roles))
	for addrText, roleNames := range spec.Roles {
		if _, err := identity.FromText(addrText); err != nil {
			return account.CreateArgs{}, fmt.Errorf("invalid role holder %q: %w", addrText, err)
		}
		converted := make([]account.Role, len(roleNames))
		for i, r := range roleNames {
			converted[i] = account.Role(r)
		}
		roles[addrText] = converted
	}
	features := make([]account.Feature, len(spec.Features))
	for i, f := range spec.Features {
		features[i] = account.Feature(f)
	}
	return account.CreateArgs{
		Description: spec.Description,
		Roles:       roles,
		Features:    features,
	}, nil
}
