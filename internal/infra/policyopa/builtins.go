package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is everything an authorization policy may call. Anything
// touching the network, clock or randomness is left out so decisions depend on
// input alone.
var allowedBuiltins = map[string]struct{}{
	"assign":     {},
	"concat":     {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"lower":      {},
	"neq":        {},
	"object.get": {},
	"sprintf":    {},
	"startswith": {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
