package neuron

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antonmedv/expr/vm"

	"neurosim/internal/model"
)

var (
	derivativeLine = regexp.MustCompile(`^d([A-Za-z_][A-Za-z0-9_]*)\s*/\s*dt\s*=\s*(.+)$`)
	assignmentLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	declLine       = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)$`)
	resetStatement = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(\+=|-=|\*=|/=|=)\s*(.+)$`)
)

type namedSource struct {
	name   string
	source string
}

type resetOp struct {
	target  int
	op      string
	source  string
	program *vm.Program
}

// buildCustom parses user model text. Equations hold one statement per line
// (or per ';'): "dX/dt = expr" declares state X, "name = expr" a constant
// parameter, and "I" alone declares the input current. Anything after ':' is
// a unit annotation and is ignored.
func buildCustom(p model.CustomParams) (Dynamics, error) {
	derivs, constants, err := parseEquations(p.Equations)
	if err != nil {
		return Dynamics{}, err
	}
	if strings.TrimSpace(p.Threshold) == "" {
		return Dynamics{}, &model.ModelDefinitionError{Section: "threshold", Source: p.Threshold, Reason: "threshold condition is required"}
	}
	if strings.TrimSpace(p.Reset) == "" {
		return Dynamics{}, &model.ModelDefinitionError{Section: "reset", Source: p.Reset, Reason: "reset statement is required"}
	}

	symbols := newSymbolTable()
	for _, c := range constants {
		if symbols.known(c.name) || isReservedSymbol(c.name) {
			return Dynamics{}, &model.ModelDefinitionError{Section: "equations", Source: c.source, Token: c.name, Reason: "name already in use"}
		}
		program, err := compileExpression("equations", c.source, symbols)
		if err != nil {
			return Dynamics{}, err
		}
		value, err := evalFloat(program, symbols.env(symbols.constants(), 0, 0, nil))
		if err != nil {
			return Dynamics{}, &model.ModelDefinitionError{Section: "equations", Source: c.source, Token: c.name, Reason: err.Error()}
		}
		symbols.params[c.name] = value
	}

	for _, d := range derivs {
		if isReservedSymbol(d.name) || symbols.isFunction(d.name) {
			return Dynamics{}, &model.ModelDefinitionError{Section: "equations", Source: d.source, Token: d.name, Reason: "reserved name cannot be a state variable"}
		}
		if _, clash := symbols.params[d.name]; clash {
			return Dynamics{}, &model.ModelDefinitionError{Section: "equations", Source: d.source, Token: d.name, Reason: "state variable shadows a parameter"}
		}
		symbols.stateIndex[d.name] = len(symbols.states)
		symbols.states = append(symbols.states, d.name)
	}
	symbols.dynamic = true

	constEnv := symbols.constants()
	zero := make([]float64, len(symbols.states))
	trial := symbols.env(constEnv, 0, 0, zero)

	programs := make([]*vm.Program, len(derivs))
	for i, d := range derivs {
		program, err := compileExpression("equations", d.source, symbols)
		if err != nil {
			return Dynamics{}, err
		}
		if _, err := evalFloat(program, trial); err != nil {
			return Dynamics{}, &model.ModelDefinitionError{Section: "equations", Source: d.source, Token: "d" + d.name + "/dt", Reason: err.Error()}
		}
		programs[i] = program
	}

	threshold, err := compileExpression("threshold", p.Threshold, symbols)
	if err != nil {
		return Dynamics{}, err
	}
	if _, err := evalBool(threshold, trial); err != nil {
		return Dynamics{}, &model.ModelDefinitionError{Section: "threshold", Source: p.Threshold, Reason: err.Error()}
	}

	resets, err := parseReset(p.Reset, symbols)
	if err != nil {
		return Dynamics{}, err
	}
	for _, r := range resets {
		if _, err := evalFloat(r.program, trial); err != nil {
			return Dynamics{}, &model.ModelDefinitionError{Section: "reset", Source: r.source, Token: symbols.states[r.target], Reason: err.Error()}
		}
	}

	return Dynamics{
		Kind:       model.ModelCustom,
		StateNames: append([]string(nil), symbols.states...),
		Initial:    make([]float64, len(symbols.states)),
		Derivative: func(t, current float64, state, dst []float64) error {
			env := symbols.env(constEnv, t, current, state)
			for i, program := range programs {
				value, err := evalFloat(program, env)
				if err != nil {
					return fmt.Errorf("d%s/dt: %w", symbols.states[i], err)
				}
				dst[i] = value
			}
			return nil
		},
		Threshold: func(t, current float64, state []float64) (bool, error) {
			return evalBool(threshold, symbols.env(constEnv, t, current, state))
		},
		Reset: func(t, current float64, state []float64) error {
			env := symbols.env(constEnv, t, current, state)
			for _, r := range resets {
				value, err := evalFloat(r.program, env)
				if err != nil {
					return fmt.Errorf("reset %s: %w", symbols.states[r.target], err)
				}
				current := state[r.target]
				switch r.op {
				case "=":
					current = value
				case "+=":
					current += value
				case "-=":
					current -= value
				case "*=":
					current *= value
				case "/=":
					current /= value
				}
				state[r.target] = current
				env[symbols.states[r.target]] = current
			}
			return nil
		},
	}, nil
}

// parseEquations returns derivative statements with the membrane potential v
// first, followed by the remaining states in order of appearance.
func parseEquations(text string) ([]namedSource, []namedSource, error) {
	var derivs, constants []namedSource
	seen := make(map[string]bool)
	for _, stmt := range splitStatements(text) {
		body, _, _ := strings.Cut(stmt, ":")
		body = strings.TrimSpace(body)
		switch {
		case derivativeLine.MatchString(body):
			m := derivativeLine.FindStringSubmatch(body)
			if seen[m[1]] {
				return nil, nil, &model.ModelDefinitionError{Section: "equations", Source: stmt, Token: m[1], Reason: "state variable defined twice"}
			}
			seen[m[1]] = true
			derivs = append(derivs, namedSource{name: m[1], source: strings.TrimSpace(m[2])})
		case assignmentLine.MatchString(body):
			m := assignmentLine.FindStringSubmatch(body)
			constants = append(constants, namedSource{name: m[1], source: strings.TrimSpace(m[2])})
		case declLine.MatchString(body):
			name := declLine.FindStringSubmatch(body)[1]
			if name != symbolCurrent {
				return nil, nil, &model.ModelDefinitionError{Section: "equations", Source: stmt, Token: name, Reason: "parameter declared without a value"}
			}
		default:
			return nil, nil, &model.ModelDefinitionError{Section: "equations", Source: stmt, Token: body, Reason: "expected dX/dt = expression or name = value"}
		}
	}
	if len(derivs) == 0 {
		return nil, nil, &model.ModelDefinitionError{Section: "equations", Source: text, Reason: "at least one dX/dt equation is required"}
	}

	vIndex := -1
	for i, d := range derivs {
		if d.name == "v" {
			vIndex = i
			break
		}
	}
	if vIndex < 0 {
		return nil, nil, &model.ModelDefinitionError{Section: "equations", Source: text, Token: "v", Reason: "membrane potential v must have an equation"}
	}
	ordered := make([]namedSource, 0, len(derivs))
	ordered = append(ordered, derivs[vIndex])
	ordered = append(ordered, derivs[:vIndex]...)
	ordered = append(ordered, derivs[vIndex+1:]...)
	return ordered, constants, nil
}

func parseReset(text string, symbols *symbolTable) ([]resetOp, error) {
	var ops []resetOp
	for _, stmt := range splitStatements(text) {
		m := resetStatement.FindStringSubmatch(stmt)
		if m == nil {
			return nil, &model.ModelDefinitionError{Section: "reset", Source: stmt, Token: stmt, Reason: "expected target = expression"}
		}
		target, ok := symbols.stateIndex[m[1]]
		if !ok {
			return nil, &model.ModelDefinitionError{Section: "reset", Source: stmt, Token: m[1], Reason: "reset target is not a state variable"}
		}
		source := strings.TrimSpace(m[3])
		program, err := compileExpression("reset", source, symbols)
		if err != nil {
			return nil, err
		}
		ops = append(ops, resetOp{target: target, op: m[2], source: source, program: program})
	}
	return ops, nil
}

func splitStatements(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line, _, _ = strings.Cut(line, "#")
		for _, stmt := range strings.Split(line, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out
}
