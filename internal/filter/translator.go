// Package filter maps filters entered in the view onto the operator codes
// the server understands.
package filter

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/state"
)

var (
	ErrUnknownOperator   = errors.New("unknown filter operator")
	ErrInvalidExpression = errors.New("invalid filter expression")
)

// operators is ordered so that two character symbols are tried first when parsing.
var operators = []struct {
	symbol string
	code   string
}{
	{"<=", protocol.OpLe},
	{">=", protocol.OpGe},
	{"=", protocol.OpEq},
	{">", protocol.OpGt},
	{"<", protocol.OpLt},
}

// Operators returns the recognized UI symbols.
func Operators() []string {
	return []string{"=", ">", "<", "<=", ">="}
}

// Code returns the wire code for a UI operator symbol.
func Code(symbol string) (string, error) {
	for _, op := range operators {
		if op.symbol == symbol {
			return op.code, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownOperator, "%q", symbol)
}

// Translate substitutes the operator and passes parameter and value through.
func Translate(f state.UIFilter) (protocol.WireFilter, error) {
	code, err := Code(f.Operator)
	if err != nil {
		return protocol.WireFilter{}, errors.Wrapf(err, "filter %q", f.Parameter)
	}
	return protocol.WireFilter{
		Parameter: f.Parameter,
		Operator:  code,
		Value:     f.Value,
	}, nil
}

// TranslateAll translates filters in order and stops at the first unknown operator.
func TranslateAll(filters []state.UIFilter) ([]protocol.WireFilter, error) {
	out := make([]protocol.WireFilter, 0, len(filters)+1)
	for _, f := range filters {
		wf, err := Translate(f)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// Parse reads "parameter <op> value", spaces around the operator optional.
func Parse(expr string) (state.UIFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return state.UIFilter{}, errors.Wrap(ErrInvalidExpression, "empty")
	}

	idx, symbol := -1, ""
	for i := 0; i < len(expr) && idx < 0; i++ {
		for _, op := range operators {
			if strings.HasPrefix(expr[i:], op.symbol) {
				idx, symbol = i, op.symbol
				break
			}
		}
	}
	if idx < 0 {
		return state.UIFilter{}, errors.Wrapf(ErrInvalidExpression, "no operator in %q", expr)
	}

	f := state.UIFilter{
		Parameter: strings.TrimSpace(expr[:idx]),
		Operator:  symbol,
		Value:     strings.TrimSpace(expr[idx+len(symbol):]),
	}
	if f.Parameter == "" {
		return state.UIFilter{}, errors.Wrapf(ErrInvalidExpression, "missing parameter in %q", expr)
	}
	if f.Value == "" {
		return state.UIFilter{}, errors.Wrapf(ErrInvalidExpression, "missing value in %q", expr)
	}
	return f, nil
}
