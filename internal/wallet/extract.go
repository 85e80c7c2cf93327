// Package wallet hands unsigned swap transactions to an external wallet
// bridge for signing.
package wallet

import (
	"github.com/rotisserie/eris"
)

// ErrNoTransaction is returned when no strategy finds transaction data.
var ErrNoTransaction = eris.New("wallet: no transaction data in payload")

// Extracted is the transaction data found in a payload and the strategy
// that found it.
type Extracted struct {
	Strategy string
	Data     any
}

type strategy struct {
	name    string
	extract func(payload map[string]any) any
}

// strategies are tried in order; the first non-empty value wins.
var strategies = []strategy{
	{"transaction.data", nested("transaction", "data")},
	{"transaction", stringAt("transaction")},
	{"transaction.tx", nested("transaction", "tx")},
	{"transaction.rawTransaction", nested("transaction", "rawTransaction")},
	{"transaction.transaction", nested("transaction", "transaction")},
	{"transaction.transactionData", nested("transaction", "transactionData")},
	{"tx", at("tx")},
	{"data", at("data")},
	{"rawTransaction", at("rawTransaction")},
}

// ExtractTransaction locates the transaction data in an aggregator or
// bridge payload.
func ExtractTransaction(payload map[string]any) (Extracted, error) {
	for _, s := range strategies {
		if v := s.extract(payload); present(v) {
			return Extracted{Strategy: s.name, Data: v}, nil
		}
	}
	return Extracted{}, ErrNoTransaction
}

func at(key string) func(map[string]any) any {
	return func(p map[string]any) any { return p[key] }
}

func stringAt(key string) func(map[string]any) any {
	return func(p map[string]any) any {
		if s, ok := p[key].(string); ok {
			return s
		}
		return nil
	}
}

func nested(outer, inner string) func(map[string]any) any {
	return func(p map[string]any) any {
		m, ok := p[outer].(map[string]any)
		if !ok {
			return nil
		}
		return m[inner]
	}
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case bool:
		return t
	}
	return true
}
