package expr

import (
	"fmt"
	"strings"
)

// Stmt is a single execute_code statement: either an assignment into the
// context or a bare expression evaluated for its side-effect-free result.
type Stmt struct {
	// Target is the dotted assignment path; empty for bare expressions.
	Target string
	Expr   Node
}

// ParseProgram parses an execute_code body: statements separated by newlines
// or semicolons, each either `path = expression` or a bare expression. Blank
// lines and `#` comments are skipped. Anything else is rejected.
func ParseProgram(src string) ([]Stmt, error) {
	var stmts []Stmt
	for _, line := range splitStatements(src) {
		target, exprSrc, isAssign, err := splitAssignment(line)
		if err != nil {
			return nil, err
		}
		node, err := Parse(exprSrc)
		if err != nil {
			return nil, fmt.Errorf("statement %q: %w", line, err)
		}
		if isAssign {
			stmts = append(stmts, Stmt{Target: target, Expr: node})
		} else {
			stmts = append(stmts, Stmt{Expr: node})
		}
	}
	return stmts, nil
}

// RunProgram parses and executes src, applying assignments to the context.
// setPath writes a value at a dotted path (the context package provides it;
// taking it as a parameter keeps this package dependency-free).
func RunProgram(src string, context map[string]any, setPath func(map[string]any, string, any)) error {
	stmts, err := ParseProgram(src)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		result, err := Eval(stmt.Expr, context)
		if err != nil {
			return err
		}
		if stmt.Target != "" {
			setPath(context, stmt.Target, result)
		}
	}
	return nil
}

func splitStatements(src string) []string {
	raw := strings.FieldsFunc(src, func(r rune) bool {
		return r == '\n' || r == ';'
	})
	var out []string
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitAssignment detects `path = expr`, taking care not to treat ==, !=, <=
// or >= as assignment.
func splitAssignment(line string) (target, exprSrc string, isAssign bool, err error) {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}
		if i+1 < len(line) && line[i+1] == '=' {
			i++ // skip ==
			continue
		}
		if i > 0 && (line[i-1] == '!' || line[i-1] == '<' || line[i-1] == '>' || line[i-1] == '=') {
			continue
		}
		target = strings.TrimSpace(line[:i])
		exprSrc = strings.TrimSpace(line[i+1:])
		if !validAssignTarget(target) {
			return "", "", false, fmt.Errorf("invalid assignment target %q", target)
		}
		if exprSrc == "" {
			return "", "", false, fmt.Errorf("missing expression after %q =", target)
		}
		return target, exprSrc, true, nil
	}
	return "", line, false, nil
}

func validAssignTarget(target string) bool {
	if target == "" || target == "context" {
		return false
	}
	for _, seg := range strings.Split(target, ".") {
		if !validSegment(seg) {
			return false
		}
	}
	return true
}

// validSegment accepts identifiers or pure numeric list indices.
func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	numeric := true
	for _, r := range seg {
		if r < '0' || r > '9' {
			numeric = false
			break
		}
	}
	if numeric {
		return true
	}
	for i, r := range seg {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if i > 0 && !isIdentPart(r) {
			return false
		}
	}
	return true
}
