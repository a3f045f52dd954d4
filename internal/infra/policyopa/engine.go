// Package policyopa evaluates administrative capability checks with an
// embedded rego policy.
package policyopa

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"kioskguard/internal/domain"
)

const defaultQuery = "data.kioskguard.authz.result"

//go:embed policy/*.rego
var embedded embed.FS

type Engine struct {
	query      rego.PreparedEvalQuery
	policyHash string
}

// NewEngine compiles the built-in policy.
func NewEngine(ctx context.Context) (*Engine, error) {
	sub, err := fs.Sub(embedded, "policy")
	if err != nil {
		return nil, err
	}
	return NewEngineFromFS(ctx, sub)
}

// NewEngineFromPath compiles every .rego file under dir, replacing the built-in
// policy.
func NewEngineFromPath(ctx context.Context, dir string) (*Engine, error) {
	return NewEngineFromFS(ctx, os.DirFS(dir))
}

func NewEngineFromFS(ctx context.Context, fsys fs.FS) (*Engine, error) {
	files, err := readModules(fsys)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no rego modules found")
	}

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	opts := []func(*rego.Rego){
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	for _, f := range files {
		opts = append(opts, rego.Module(f.name, f.source))
	}
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, policyHash: hashModules(files)}, nil
}

// PolicyHash identifies the compiled policy source.
func (e *Engine) PolicyHash() string {
	return e.policyHash
}

func (e *Engine) Decide(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error) {
	if e == nil {
		return domain.PolicyDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyDecision{}, errors.New("empty policy result")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.PolicyDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyDecision{}, err
	}
	var decision domain.PolicyDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.PolicyDecision{}, err
	}
	return decision, nil
}

type module struct {
	name   string
	source string
}

func readModules(fsys fs.FS) ([]module, error) {
	var out []module
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || path.Ext(p) != ".rego" || strings.HasSuffix(p, "_test.rego") {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out = append(out, module{name: p, source: string(raw)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func hashModules(files []module) string {
	h := sha256.New()
	for _, f := range files {
		sum := sha256.Sum256([]byte(f.source))
		fmt.Fprintf(h, "%s\x00%s\n", f.name, hex.EncodeToString(sum[:]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, mod := range compiler.Modules {
		ast.WalkTerms(mod, func(term *ast.Term) bool {
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
