package rules

import (
	"errors"
	"fmt"

	"github.com/nao1215/dqmon/internal/dataset"
)

var (
	// ErrDuplicateRule is returned when two rules share a name.
	ErrDuplicateRule = errors.New("duplicate rule name")

	// ErrMaskLength is returned when a rule's mask does not cover every row.
	ErrMaskLength = errors.New("rule mask length does not match row count")

	// ErrUnknownRuleType is returned for a rule spec with an unrecognized type.
	ErrUnknownRuleType = errors.New("unknown rule type")

	// ErrCountRange is returned when a rule's passing count is negative or
	// larger than the row count.
	ErrCountRange = errors.New("rule count outside the row range")
)

// Outcome is what a rule reports: a per-row mask or a count of passing rows.
type Outcome struct {
	mask   []bool
	count  int
	masked bool
}

// Mask returns an Outcome from a per-row pass mask.
func Mask(m []bool) Outcome { return Outcome{mask: m, masked: true} }

// Count returns an Outcome from a number of passing rows.
func Count(n int) Outcome { return Outcome{count: n} }

// Passed returns the number of passing rows.
func (o Outcome) Passed() int {
	if !o.masked {
		return o.count
	}
	n := 0
	for _, ok := range o.mask {
		if ok {
			n++
		}
	}
	return n
}

// Rule is a named validity predicate.
type Rule interface {
	// Name identifies the rule in reports.
	Name() string

	// Evaluate reports which rows of ds satisfy the rule.
	Evaluate(ds *dataset.Dataset) (Outcome, error)
}

// Func adapts a function to the Rule interface.
type Func struct {
	name string
	fn   func(*dataset.Dataset) (Outcome, error)
}

// NewFunc creates a rule from fn.
func NewFunc(name string, fn func(*dataset.Dataset) (Outcome, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Rule.
func (f *Func) Name() string { return f.name }

// Evaluate implements Rule.
func (f *Func) Evaluate(ds *dataset.Dataset) (Outcome, error) { return f.fn(ds) }

// EvaluationError records why a single rule could not be scored.
type EvaluationError struct {
	Rule string
	Err  error
}

// Error implements error.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// Result is the score of one rule.
type Result struct {
	Name string

	// Passed is the number of passing rows.
	Passed int

	// Percent is Passed / rows * 100, or 0 when the rule failed.
	Percent float64

	// Err is non-nil when the rule failed to evaluate.
	Err *EvaluationError
}

// Set is an ordered registry of rules keyed by name.
type Set struct {
	order []string
	rules map[string]Rule
}

// NewSet creates a set from rules, rejecting duplicate names.
func NewSet(rules ...Rule) (*Set, error) {
	s := &Set{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers r.
func (s *Set) Add(r Rule) error {
	if _, ok := s.rules[r.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, r.Name())
	}
	s.order = append(s.order, r.Name())
	s.rules[r.Name()] = r
	return nil
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.order) }

// Names returns the rule names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the named rule.
func (s *Set) Get(name string) (Rule, bool) {
	r, ok := s.rules[name]
	return r, ok
}

// Evaluate runs every rule against ds in registration order. A failing rule
// yields a Result with Err set and never stops the remaining rules.
func (s *Set) Evaluate(ds *dataset.Dataset) []Result {
	results := make([]Result, 0, len(s.order))
	for _, name := range s.order {
		results = append(results, evaluateOne(s.rules[name], ds))
	}
	return results
}

func evaluateOne(r Rule, ds *dataset.Dataset) (res Result) {
	res.Name = r.Name()

	defer func() {
		if p := recover(); p != nil {
			res = Result{Name: r.Name(), Err: &EvaluationError{Rule: r.Name(), Err: fmt.Errorf("panic: %v", p)}}
		}
	}()

	out, err := r.Evaluate(ds)
	if err != nil {
		return Result{Name: r.Name(), Err: &EvaluationError{Rule: r.Name(), Err: err}}
	}
	if out.masked && len(out.mask) != ds.Len() {
		return Result{Name: r.Name(), Err: &EvaluationError{
			Rule: r.Name(),
			Err:  fmt.Errorf("%w: got %d, want %d", ErrMaskLength, len(out.mask), ds.Len()),
		}}
	}
	if !out.masked && (out.count < 0 || out.count > ds.Len()) {
		return Result{Name: r.Name(), Err: &EvaluationError{
			Rule: r.Name(),
			Err:  fmt.Errorf("%w: %d not in [0, %d]", ErrCountRange, out.count, ds.Len()),
		}}
	}

	res.Passed = out.Passed()
	if ds.Len() > 0 {
		res.Percent = float64(res.Passed) / float64(ds.Len()) * 100
	}
	return res
}

// Defaults synthesizes the rules used when none are configured: numeric
// columns must be non-negative and text columns must be non-empty.
func Defaults(ds *dataset.Dataset) *Set {
	s := &Set{rules: make(map[string]Rule)}
	for _, c := range ds.NumericColumns() {
		_ = s.Add(NonNegative(c.Name()+"_no_negatives", c.Name()))
	}
	for _, c := range ds.ObjectColumns() {
		_ = s.Add(NotEmpty(c.Name()+"_not_empty", c.Name()))
	}
	return s
}
