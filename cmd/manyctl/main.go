// Copyright 2025 Certen Protocol
//
// manyctl is a thin RPC client for a running manyd node: each
// subcommand builds one request through pkg/client.Client, prints the
// decoded response as JSON, and exits. Grounded on the teacher's own
// cmd/bls-zk-setup/main.go shape: a single main() that dispatches into
// package logic and reports errors with os.Exit(1), nothing more.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/certenio/manynet/pkg/client"
	"github.com/certenio/manynet/pkg/identity"
	"github.com/certenio/manynet/pkg/manycbor"
	"github.com/certenio/manynet/pkg/modules/account"
	"github.com/certenio/manynet/pkg/modules/ledger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = runStatus(args)
	case "balance":
		err = runBalance(args)
	case "send":
		err = runSend(args)
	case "token-info":
		err = runTokenInfo(args)
	case "account-info":
		err = runAccountInfo(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "manyctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: manyctl <status|balance|send|token-info|account-info> [flags]")
}

// commonFlags are accepted by every subcommand: the node to talk to and
// an optional signing identity.
type commonFlags struct {
	server string
	pem    string
	to     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.server, "server", "http://127.0.0.1:8080", "base URL of the manyd node to talk to")
	fs.StringVar(&c.pem, "pem", "", "path to a PKCS#8 Ed25519 PEM file to sign the request with (anonymous if empty)")
	fs.StringVar(&c.to, "to", "", "identity text of the endpoint to address (defaults to the server's own identity)")
}

func (c *commonFlags) newClient() (*client.Client, identity.Identity, error) {
	var (
		signer *identity.PublicKey
		id     identity.Identity
	)
	if c.pem != "" {
		pk, callerID, err := identity.LoadEd25519PEM(c.pem)
		if err != nil {
			return nil, identity.Identity{}, err
		}
		signer, id = pk, callerID
	}

	to := identity.Anonymous
	if c.to != "" {
		parsed, err := identity.FromText(c.to)
		if err != nil {
			return nil, identity.Identity{}, fmt.Errorf("parse --to: %w", err)
		}
		to = parsed
	}

	return client.NewClient(c.server, id, signer), to, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, to, err := cf.newClient()
	if err != nil {
		return err
	}
	data, err := c.Call(context.Background(), to, "status", nil)
	if err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := manycbor.Unmarshal(data, &raw); err != nil {
		return printJSON(map[string]string{"raw_hex": fmt.Sprintf("%x", data)})
	}
	return printJSON(raw)
}

func runBalance(args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	acctFlag := fs.String("account", "", "identity text of the account to query (defaults to the caller)")
	symbols := fs.String("symbols", "", "comma-separated symbol identities to restrict the query to (all known symbols if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, to, err := cf.newClient()
	if err != nil {
		return err
	}

	var balArgs ledger.BalanceArgs
	if *acctFlag != "" {
		acct, err := identity.FromText(*acctFlag)
		if err != nil {
			return fmt.Errorf("parse --account: %w", err)
		}
		balArgs.Account = &acct
	}
	if *symbols != "" {
		for _, sym := range splitCSV(*symbols) {
			id, err := identity.FromText(sym)
			if err != nil {
				return fmt.Errorf("parse --symbols: %w", err)
			}
			balArgs.Symbols = append(balArgs.Symbols, id)
		}
	}

	data, err := manycbor.Marshal(balArgs)
	if err != nil {
		return err
	}
	resp, err := c.Call(context.Background(), to, "ledger.balance", data)
	if err != nil {
		return err
	}
	var out ledger.BalanceReturns
	if err := manycbor.Unmarshal(resp, &out); err != nil {
		return err
	}
	balances := make(map[string]string, len(out.Balances))
	for sym, amt := range out.Balances {
		balances[sym] = amt.String()
	}
	return printJSON(balances)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	recipient := fs.String("recipient", "", "identity text of the recipient (required)")
	symbol := fs.String("symbol", "", "identity text of the token symbol (required)")
	amount := fs.String("amount", "", "base-10 amount to send (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *recipient == "" || *symbol == "" || *amount == "" {
		return fmt.Errorf("--recipient, --symbol, and --amount are required")
	}
	c, to, err := cf.newClient()
	if err != nil {
		return err
	}

	recipientID, err := identity.FromText(*recipient)
	if err != nil {
		return fmt.Errorf("parse --recipient: %w", err)
	}
	symbolID, err := identity.FromText(*symbol)
	if err != nil {
		return fmt.Errorf("parse --symbol: %w", err)
	}
	amt, err := ledger.FromDecimalString(*amount)
	if err != nil {
		return fmt.Errorf("parse --amount: %w", err)
	}

	data, err := manycbor.Marshal(ledger.SendArgs{To: recipientID, Symbol: symbolID, Amount: amt})
	if err != nil {
		return err
	}
	resp, err := c.Call(context.Background(), to, "ledger.send", data)
	if err != nil {
		return err
	}
	var out ledger.SendReturns
	if err := manycbor.Unmarshal(resp, &out); err != nil {
		return err
	}
	return printJSON(map[string]string{"balance": out.Balance.String()})
}

func runTokenInfo(args []string) error {
	fs := flag.NewFlagSet("token-info", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	symbol := fs.String("symbol", "", "identity text of the token symbol (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	c, to, err := cf.newClient()
	if err != nil {
		return err
	}
	symbolID, err := identity.FromText(*symbol)
	if err != nil {
		return fmt.Errorf("parse --symbol: %w", err)
	}

	data, err := manycbor.Marshal(ledger.TokenInfoArgs{Symbol: symbolID})
	if err != nil {
		return err
	}
	resp, err := c.Call(context.Background(), to, "tokens.info", data)
	if err != nil {
		return err
	}
	var out ledger.TokenInfoReturns
	if err := manycbor.Unmarshal(resp, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runAccountInfo(args []string) error {
	fs := flag.NewFlagSet("account-info", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	acct := fs.String("account", "", "identity text of the account to query (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *acct == "" {
		return fmt.Errorf("--account is required")
	}
	c, to, err := cf.newClient()
	if err != nil {
		return err
	}
	acctID, err := identity.FromText(*acct)
	if err != nil {
		return fmt.Errorf("parse --account: %w", err)
	}

	data, err := manycbor.Marshal(account.InfoArgs{Account: acctID})
	if err != nil {
		return err
	}
	resp, err := c.Call(context.Background(), to, "account.info", data)
	if err != nil {
		return err
	}
	var out account.InfoReturns
	if err := manycbor.Unmarshal(resp, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
