package policyopa

import (
	"sort"

	"github.com/open-policy-agent/opa/ast"
)

// allowedBuiltins covers identity comparison and string normalization.
// Network and clock builtins are excluded.
var allowedBuiltins = map[string]struct{}{
	"concat":     {},
	"contains":   {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"lower":      {},
	"neq":        {},
	"object.get": {},
	"sprintf":    {},
	"startswith": {},
	"trim":       {},
	"trim_space": {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			allowed = append(allowed, builtin)
		}
	}
	return allowed
}

// AllowedBuiltins lists the builtin names a policy bundle may call.
func AllowedBuiltins() []string {
	names := make([]string, 0, len(allowedBuiltins))
	for name := range allowedBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
