package neuron

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/ast"
	"github.com/antonmedv/expr/parser"
	"github.com/antonmedv/expr/vm"

	"neurosim/internal/model"
)

const (
	symbolCurrent = "I"
	symbolTime    = "t"
)

// Unit names evaluate to 1 because the engine already works in ms, mV, pA,
// nS and pF.
var unitConstants = map[string]float64{
	"ms": 1,
	"mV": 1,
	"pA": 1,
	"nS": 1,
	"pF": 1,
}

var allowedUnary = map[string]bool{"-": true, "+": true, "not": true, "!": true}

var allowedBinary = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true, "^": true,
	"<": true, ">": true, "<=": true, ">=": true, "==": true, "!=": true,
	"and": true, "or": true, "&&": true, "||": true,
}

func isReservedSymbol(name string) bool {
	if name == symbolCurrent || name == symbolTime {
		return true
	}
	_, ok := unitConstants[name]
	return ok
}

// symbolTable lists the names an expression may reference.
type symbolTable struct {
	states     []string
	stateIndex map[string]int
	params     map[string]float64
	funcs      map[string]ScalarFunc
	// dynamic is false while named parameters are being resolved; state
	// variables, I and t are not visible then.
	dynamic bool
}

func newSymbolTable() *symbolTable {
	return &symbolTable{
		stateIndex: make(map[string]int),
		params:     make(map[string]float64),
		funcs:      snapshotFunctions(),
	}
}

func (s *symbolTable) isFunction(name string) bool {
	_, ok := s.funcs[name]
	return ok
}

func (s *symbolTable) known(name string) bool {
	if _, ok := unitConstants[name]; ok {
		return true
	}
	if _, ok := s.params[name]; ok {
		return true
	}
	if s.isFunction(name) {
		return true
	}
	if !s.dynamic {
		return false
	}
	if name == symbolCurrent || name == symbolTime {
		return true
	}
	_, ok := s.stateIndex[name]
	return ok
}

// constants is the part of the environment that never changes during a run.
func (s *symbolTable) constants() map[string]any {
	env := make(map[string]any, len(unitConstants)+len(s.params)+len(s.funcs))
	for name, v := range unitConstants {
		env[name] = v
	}
	for name, v := range s.params {
		env[name] = v
	}
	for name, fn := range s.funcs {
		env[name] = (func(float64) float64)(fn)
	}
	return env
}

func (s *symbolTable) env(constants map[string]any, t, current float64, state []float64) map[string]any {
	env := make(map[string]any, len(constants)+len(s.states)+2)
	for name, v := range constants {
		env[name] = v
	}
	if s.dynamic {
		env[symbolTime] = t
		env[symbolCurrent] = current
		for i, name := range s.states {
			env[name] = state[i]
		}
	}
	return env
}

// compileExpression accepts only the closed arithmetic grammar: numeric and
// boolean literals, known identifiers, whitelisted operators and calls of
// registered one-argument functions.
func compileExpression(section, source string, symbols *symbolTable) (*vm.Program, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, &model.ModelDefinitionError{Section: section, Source: source, Token: source, Reason: "syntax error: " + firstLine(err.Error())}
	}
	g := &grammarCheck{section: section, source: source, symbols: symbols}
	g.check(tree.Node)
	if g.err != nil {
		return nil, g.err
	}

	zero := make([]float64, len(symbols.states))
	program, err := expr.Compile(source, expr.Env(symbols.env(symbols.constants(), 0, 0, zero)))
	if err != nil {
		return nil, &model.ModelDefinitionError{Section: section, Source: source, Token: source, Reason: firstLine(err.Error())}
	}
	return program, nil
}

type grammarCheck struct {
	section string
	source  string
	symbols *symbolTable
	err     error
}

func (g *grammarCheck) fail(token, reason string) {
	if g.err == nil {
		g.err = &model.ModelDefinitionError{Section: g.section, Source: g.source, Token: token, Reason: reason}
	}
}

func (g *grammarCheck) check(node ast.Node) {
	if g.err != nil {
		return
	}
	switch n := node.(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode:
	case *ast.IdentifierNode:
		if !g.symbols.known(n.Value) {
			g.fail(n.Value, "unknown symbol")
		}
	case *ast.UnaryNode:
		if !allowedUnary[n.Operator] {
			g.fail(n.Operator, "unsupported operator")
			return
		}
		g.check(n.Node)
	case *ast.BinaryNode:
		if !allowedBinary[n.Operator] {
			g.fail(n.Operator, "unsupported operator")
			return
		}
		g.check(n.Left)
		g.check(n.Right)
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || !g.symbols.isFunction(id.Value) {
			g.fail(describeNode(n.Callee), "unsupported function")
			return
		}
		if len(n.Arguments) != 1 {
			g.fail(id.Value, fmt.Sprintf("expects 1 argument, got %d", len(n.Arguments)))
			return
		}
		g.check(n.Arguments[0])
	case *ast.BuiltinNode:
		g.fail(n.Name, "unsupported function")
	default:
		g.fail(describeNode(node), "unsupported construct")
	}
}

func describeNode(node ast.Node) string {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return n.Value
	case *ast.StringNode:
		return fmt.Sprintf("%q", n.Value)
	case *ast.MemberNode:
		return "."
	case *ast.ConditionalNode:
		return "?"
	case *ast.ArrayNode:
		return "["
	case *ast.MapNode:
		return "{"
	case *ast.NilNode:
		return "nil"
	case *ast.BuiltinNode:
		return n.Name
	default:
		return fmt.Sprintf("%T", node)
	}
}

func evalFloat(program *vm.Program, env map[string]any) (float64, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(out)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", out)
	}
	return f, nil
}

func evalBool(program *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expected a boolean, got %T", out)
	}
	return b, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	default:
		return 0, false
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
