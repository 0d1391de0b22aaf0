package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"merkleverifier/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.merkleverifier.authz"

//go:embed policy/*.rego
var defaultPolicy embed.FS

// Authorizer decides verifier actions with a rego policy. Input documents
// carry action, verifier_id, caller, owner and admins.
type Authorizer struct {
	query      rego.PreparedEvalQuery
	bundleHash string
	admins     []string
}

type decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// NewAuthorizer compiles the built-in owner/admin policy.
func NewAuthorizer(ctx context.Context, admins []domain.Identity) (*Authorizer, error) {
	source, err := defaultPolicy.ReadFile("policy/authz.rego")
	if err != nil {
		return nil, err
	}
	hash, err := ComputeBundleHashFromFS(defaultPolicy, "policy")
	if err != nil {
		return nil, err
	}
	return newAuthorizer(ctx, hash, admins, rego.Module("authz.rego", string(source)))
}

// NewAuthorizerFromBundlePath compiles the .rego and data files under
// bundlePath. The bundle must define data.merkleverifier.authz.allow.
func NewAuthorizerFromBundlePath(ctx context.Context, bundlePath string, admins []domain.Identity) (*Authorizer, error) {
	hash, err := ComputeBundleHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}
	return newAuthorizer(ctx, hash, admins, rego.Load([]string{bundlePath}, nil))
}

func newAuthorizer(ctx context.Context, bundleHash string, admins []domain.Identity, source func(*rego.Rego)) (*Authorizer, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		source,
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}

	adminIDs := make([]string, 0, len(admins))
	for _, admin := range admins {
		if !admin.Empty() {
			adminIDs = append(adminIDs, string(admin))
		}
	}
	return &Authorizer{
		query:      prepared,
		bundleHash: bundleHash,
		admins:     adminIDs,
	}, nil
}

func (a *Authorizer) BundleHash() string {
	return a.bundleHash
}

func (a *Authorizer) Authorize(ctx context.Context, req domain.AuthzRequest) error {
	if a == nil {
		return errors.New("policy authorizer is nil")
	}
	input := map[string]any{
		"action":      req.Action,
		"verifier_id": req.VerifierID,
		"caller":      string(req.Caller),
		"owner":       string(req.Owner),
		"admins":      a.admins,
	}
	results, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return errors.New("empty policy result")
	}
	out, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return err
	}
	if out.Allow {
		return nil
	}
	if out.Reason == "" {
		out.Reason = "denied by policy"
	}
	return fmt.Errorf("%w: %s", domain.ErrUnauthorized, out.Reason)
}

func decodeDecision(value any) (decision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return decision{}, err
	}
	var out decision
	if err := json.Unmarshal(payload, &out); err != nil {
		return decision{}, fmt.Errorf("decode policy result: %w", err)
	}
	return out, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
