// Package check evaluates optional assertions against HTTP responses.
//
// Checks never fail a request; they only feed pass/fail counters. Supported forms:
//
//	status == 200
//	body contains Member
//	json $.0.id exists
//	json # > 0
//
// JSON paths use gjson syntax, with an optional leading "$." stripped.
package check

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type kind int

const (
	kindStatus kind = iota
	kindBodyContains
	kindJSONExists
	kindJSONCompare
)

// Check is one parsed assertion. Name is the original expression.
type Check struct {
	Name  string
	kind  kind
	path  string
	text  string
	op    string
	value float64
}

// Response is the part of a response a Check can inspect.
type Response struct {
	StatusCode int
	Body       []byte
}

// Result is the outcome of evaluating one Check.
type Result struct {
	Name   string
	Passed bool
}

var validOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// ParseAll parses every expression, failing on the first invalid one.
func ParseAll(exprs []string) ([]Check, error) {
	checks := make([]Check, 0, len(exprs))
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		c, err := Parse(expr)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Parse parses a single check expression.
func Parse(expr string) (Check, error) {
	name := strings.TrimSpace(expr)
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return Check{}, fmt.Errorf("check: empty expression")
	}

	switch strings.ToLower(fields[0]) {
	case "status":
		if len(fields) != 3 {
			return Check{}, fmt.Errorf("check %q: expected 'status <op> <code>'", name)
		}
		op, value, err := parseComparison(fields[1], fields[2])
		if err != nil {
			return Check{}, fmt.Errorf("check %q: %w", name, err)
		}
		return Check{Name: name, kind: kindStatus, op: op, value: value}, nil

	case "body":
		if len(fields) < 3 || strings.ToLower(fields[1]) != "contains" {
			return Check{}, fmt.Errorf("check %q: expected 'body contains <text>'", name)
		}
		idx := strings.Index(strings.ToLower(name), "contains") + len("contains")
		text := strings.TrimSpace(name[idx:])
		return Check{Name: name, kind: kindBodyContains, text: text}, nil

	case "json":
		if len(fields) < 3 {
			return Check{}, fmt.Errorf("check %q: expected 'json <path> exists' or 'json <path> <op> <number>'", name)
		}
		path := normalizePath(fields[1])
		if len(fields) == 3 && strings.ToLower(fields[2]) == "exists" {
			return Check{Name: name, kind: kindJSONExists, path: path}, nil
		}
		if len(fields) != 4 {
			return Check{}, fmt.Errorf("check %q: expected 'json <path> <op> <number>'", name)
		}
		op, value, err := parseComparison(fields[2], fields[3])
		if err != nil {
			return Check{}, fmt.Errorf("check %q: %w", name, err)
		}
		return Check{Name: name, kind: kindJSONCompare, path: path, op: op, value: value}, nil
	}

	return Check{}, fmt.Errorf("check %q: unknown subject %q (want status, body or json)", name, fields[0])
}

func parseComparison(op, raw string) (string, float64, error) {
	if !validOps[op] {
		return "", 0, fmt.Errorf("unsupported operator %q", op)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid number %q", raw)
	}
	return op, value, nil
}

// normalizePath strips a leading "$." and maps a bare "$" to the whole document.
func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}

// Evaluate reports whether resp satisfies the check.
func (c Check) Evaluate(resp Response) bool {
	switch c.kind {
	case kindStatus:
		return compare(float64(resp.StatusCode), c.op, c.value)
	case kindBodyContains:
		return strings.Contains(string(resp.Body), c.text)
	case kindJSONExists:
		return gjson.ValidBytes(resp.Body) && gjson.GetBytes(resp.Body, c.path).Exists()
	case kindJSONCompare:
		if !gjson.ValidBytes(resp.Body) {
			return false
		}
		result := gjson.GetBytes(resp.Body, c.path)
		if !result.Exists() || (result.Type != gjson.Number && !isNumericString(result)) {
			return false
		}
		return compare(result.Float(), c.op, c.value)
	}
	return false
}

func isNumericString(r gjson.Result) bool {
	if r.Type != gjson.String {
		return false
	}
	_, err := strconv.ParseFloat(r.Str, 64)
	return err == nil
}

// EvaluateAll evaluates every check against resp.
func EvaluateAll(checks []Check, resp Response) []Result {
	if len(checks) == 0 {
		return nil
	}
	results := make([]Result, len(checks))
	for i, c := range checks {
		results[i] = Result{Name: c.Name, Passed: c.Evaluate(resp)}
	}
	return results
}

func compare(actual float64, op string, expected float64) bool {
	switch op {
	case "==":
		return actual == expected
	case "!=":
		return actual != expected
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected
	}
	return false
}
