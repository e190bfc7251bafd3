// Package mangle wraps google/mangle's Datalog engine for vaultgraph's
// sweep: a fresh in-memory fact store, hydrated once per sweep run from
// the current graph snapshot, evaluated against a fixed rule set, then
// discarded. There is no cross-run persistence — sweep re-derives every
// fact from the internal/graph snapshot on every Run.
package mangle

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// Config holds Mangle engine tuning knobs.
type Config struct {
	FactLimit    int
	QueryTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{FactLimit: 200000, QueryTimeout: 5 * time.Second}
}

// Engine wraps a single evaluation of a Mangle program over a fact
// store built for one sweep run.
type Engine struct {
	config Config

	store           factstore.ConcurrentFactStore
	baseStore       factstore.FactStoreWithRemove
	programInfo     *analysis.ProgramInfo
	queryContext    *mengine.QueryContext
	predicateIndex  map[string]ast.PredicateSym
	schemaFragments []parse.SourceUnit
	factCount       int
}

// Fact is one ground Datalog fact to assert.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// QueryResult is the set of variable bindings a query produced.
type QueryResult struct {
	Bindings []map[string]interface{}
	Duration time.Duration
}

// Stats summarizes the fact store's contents.
type Stats struct {
	TotalFacts      int
	PredicateCounts map[string]int
}

// NewEngine creates an empty engine ready for LoadSchemaString.
func NewEngine(cfg Config) *Engine {
	baseStore := factstore.NewSimpleInMemoryStore()
	return &Engine{
		config:         cfg,
		baseStore:      baseStore,
		store:          factstore.NewConcurrentFactStore(baseStore),
		predicateIndex: make(map[string]ast.PredicateSym),
	}
}

// LoadSchemaString parses and adds a schema/rule fragment, then
// re-analyzes the full accumulated program.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("mangle: parse schema: %w", err)
	}
	e.schemaFragments = append(e.schemaFragments, unit)
	return e.rebuildProgram()
}

func (e *Engine) rebuildProgram() error {
	if len(e.schemaFragments) == 0 {
		return fmt.Errorf("mangle: no schema loaded")
	}

	var clauses []ast.Clause
	var decls []ast.Decl
	for _, fragment := range e.schemaFragments {
		clauses = append(clauses, fragment.Clauses...)
		decls = append(decls, fragment.Decls...)
	}

	unit := parse.SourceUnit{Clauses: clauses, Decls: decls}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("mangle: analyze schema: %w", err)
	}

	e.programInfo = programInfo
	e.predicateIndex = make(map[string]ast.PredicateSym, len(programInfo.Decls))

	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// AddFacts inserts facts and evaluates the rules once the batch is in.
func (e *Engine) AddFacts(facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}
	if e.programInfo == nil {
		return fmt.Errorf("mangle: no schema loaded")
	}
	for _, fact := range facts {
		if err := e.insertFact(fact); err != nil {
			return err
		}
	}
	_, err := mengine.EvalProgramWithStats(e.programInfo, e.store)
	return err
}

func (e *Engine) insertFact(fact Fact) error {
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("mangle: fact limit exceeded: %d", e.config.FactLimit)
	}
	atom, err := e.factToAtom(fact)
	if err != nil {
		return err
	}
	if e.store.Add(atom) {
		e.factCount++
	}
	return nil
}

func (e *Engine) factToAtom(fact Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[fact.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("mangle: predicate %s is not declared", fact.Predicate)
	}
	if len(fact.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("mangle: predicate %s expects %d args, got %d", fact.Predicate, sym.Arity, len(fact.Args))
	}

	var decl *ast.Decl
	if e.queryContext != nil {
		decl = e.queryContext.PredToDecl[sym]
	}

	args := make([]ast.BaseTerm, len(fact.Args))
	for i, raw := range fact.Args {
		expectedType := ast.ConstantType(-1)
		if decl != nil && len(decl.Bounds) > 0 {
			bounds := decl.Bounds[0].Bounds
			if len(bounds) > i {
				if c, ok := bounds[i].(ast.Constant); ok {
					switch c.Symbol {
					case "/name":
						expectedType = ast.NameType
					case "/string":
						expectedType = ast.StringType
					case "/number":
						expectedType = ast.NumberType
					}
				}
			}
		}
		term, err := convertValueToTypedTerm(raw, expectedType)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("mangle: predicate %s arg %d: %w", fact.Predicate, i, err)
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

func convertValueToTypedTerm(value interface{}, expectedType ast.ConstantType) (ast.BaseTerm, error) {
	switch expectedType {
	case ast.NameType:
		if s, ok := value.(string); ok {
			if !strings.HasPrefix(s, "/") {
				s = "/" + s
			}
			return ast.Name(s)
		}
	case ast.StringType:
		if s, ok := value.(string); ok {
			return ast.String(s), nil
		}
	}

	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "/") {
			return ast.Name(v)
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, fmt.Errorf("unsupported fact argument type %T", v)
	}
	return nil, fmt.Errorf("unsupported fact argument type %T for expected type %v", value, expectedType)
}

// Query evaluates a query atom like "dead_link(Target, Count)" and
// returns one binding row per matching result.
func (e *Engine) Query(ctx context.Context, query string) (*QueryResult, error) {
	shape, err := parseQueryShape(query)
	if err != nil {
		return nil, err
	}

	if e.queryContext == nil {
		return nil, fmt.Errorf("mangle: no schema loaded")
	}
	decl, ok := e.queryContext.PredToDecl[shape.atom.Predicate]
	if !ok {
		return nil, fmt.Errorf("mangle: predicate %s is not declared", shape.atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("mangle: predicate %s has no modes declared", shape.atom.Predicate.Symbol)
	}
	mode := decl.Modes()[0]

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	resultCh := make(chan []map[string]interface{}, 1)
	errCh := make(chan error, 1)

	go func() {
		var results []map[string]interface{}
		err := e.queryContext.EvalQuery(shape.atom, mode, unionfind.New(), func(fact ast.Atom) error {
			row := make(map[string]interface{}, len(shape.variables))
			for _, v := range shape.variables {
				if v.Index < len(fact.Args) {
					row[v.Name] = convertBaseTermToInterface(fact.Args[v.Index])
				}
			}
			results = append(results, row)
			return nil
		})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- results
	}()

	select {
	case results := <-resultCh:
		return &QueryResult{Bindings: results, Duration: time.Since(start)}, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("mangle: query timed out: %w", ctx.Err())
	}
}

// GetFacts returns every fact currently stored for a predicate.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return nil, fmt.Errorf("mangle: predicate %s is not declared", predicate)
	}
	var results []Fact
	err := e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = convertBaseTermToInterface(arg)
		}
		results = append(results, Fact{Predicate: predicate, Args: args})
		return nil
	})
	return results, err
}

// GetStats reports per-predicate fact counts.
func (e *Engine) GetStats() Stats {
	counts := make(map[string]int)
	for _, sym := range e.store.ListPredicates() {
		local := 0
		_ = e.store.GetFacts(ast.NewQuery(sym), func(ast.Atom) error {
			local++
			return nil
		})
		counts[sym.Symbol] = local
	}
	return Stats{TotalFacts: e.store.EstimateFactCount(), PredicateCounts: counts}
}

type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(query string) (*queryShape, error) {
	clean := strings.TrimSpace(query)
	clean = strings.TrimPrefix(clean, "?")
	clean = strings.TrimSpace(clean)
	clean = strings.TrimSuffix(clean, ".")

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return nil, fmt.Errorf("mangle: parse query %q: %w", query, err)
		}
	}

	var variables []queryVariable
	for idx, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			variables = append(variables, queryVariable{Name: v.Symbol, Index: idx})
		}
	}
	return &queryShape{atom: atom, variables: variables}, nil
}

func convertBaseTermToInterface(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		return constantToInterface(v)
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}

func constantToInterface(constant ast.Constant) interface{} {
	switch constant.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return constant.Symbol
	case ast.NumberType:
		return constant.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(constant.NumValue))
	default:
		return constant.String()
	}
}
