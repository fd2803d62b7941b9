package rules

import (
	"fmt"
	"regexp"

	"github.com/nao1215/dqmon/internal/dataset"
)

// columnRule passes the rows whose cell satisfies pred.
type columnRule struct {
	name   string
	column string
	pred   func(dataset.Value) bool
}

// Column returns a rule that checks every cell of column with pred.
// An unknown column makes the rule fail at evaluation time.
func Column(name, column string, pred func(dataset.Value) bool) Rule {
	return &columnRule{name: name, column: column, pred: pred}
}

func (r *columnRule) Name() string { return r.name }

func (r *columnRule) Evaluate(ds *dataset.Dataset) (Outcome, error) {
	col, err := ds.Column(r.column)
	if err != nil {
		return Outcome{}, err
	}
	mask := make([]bool, col.Len())
	for i := range mask {
		mask[i] = r.pred(col.At(i))
	}
	return Mask(mask), nil
}

// NotNull passes rows where column is present.
func NotNull(name, column string) Rule {
	return Column(name, column, func(v dataset.Value) bool { return !v.IsNull() })
}

// NonNegative passes rows where column is a number >= 0. Null fails.
func NonNegative(name, column string) Rule {
	return Column(name, column, func(v dataset.Value) bool {
		f, ok := v.Float()
		return ok && f >= 0
	})
}

// NotEmpty passes rows where column is a non-empty string. Null and
// non-string cells fail.
func NotEmpty(name, column string) Rule {
	return Column(name, column, func(v dataset.Value) bool {
		s, ok := v.Str()
		return ok && len(s) > 0
	})
}

// Range passes rows where column is a number inside [min, max]. A nil bound
// is open.
func Range(name, column string, minVal, maxVal *float64) Rule {
	return Column(name, column, func(v dataset.Value) bool {
		f, ok := v.Float()
		if !ok {
			return false
		}
		if minVal != nil && f < *minVal {
			return false
		}
		if maxVal != nil && f > *maxVal {
			return false
		}
		return true
	})
}

// Regex passes rows where the cell's text form fully matches pattern.
// Null fails.
func Regex(name, column, pattern string) (Rule, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid pattern: %w", name, err)
	}
	return Column(name, column, func(v dataset.Value) bool {
		return !v.IsNull() && re.MatchString(v.String())
	}), nil
}

// InSet passes rows whose cell's text form is one of values.
func InSet(name, column string, values []string) Rule {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	return Column(name, column, func(v dataset.Value) bool {
		return !v.IsNull() && allowed[v.String()]
	})
}
