package rules

import "fmt"

// Rule types accepted in configuration.
const (
	TypeNotNull     = "not_null"
	TypeNonNegative = "non_negative"
	TypeNotEmpty    = "not_empty"
	TypeRange       = "range"
	TypeRegex       = "regex"
	TypeInSet       = "in_set"
	TypeScript      = "script"
)

// Spec is the configuration form of a rule.
type Spec struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Type    string   `yaml:"type" mapstructure:"type"`
	Column  string   `yaml:"column,omitempty" mapstructure:"column"`
	Min     *float64 `yaml:"min,omitempty" mapstructure:"min"`
	Max     *float64 `yaml:"max,omitempty" mapstructure:"max"`
	Pattern string   `yaml:"pattern,omitempty" mapstructure:"pattern"`
	Values  []string `yaml:"values,omitempty" mapstructure:"values"`
	Script  string   `yaml:"script,omitempty" mapstructure:"script"`
}

// Build turns a spec into a Rule.
func (s Spec) Build() (Rule, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("rule of type %q has no name", s.Type)
	}
	if s.Column == "" && s.Type != TypeScript {
		return nil, fmt.Errorf("rule %s: column is required", s.Name)
	}

	switch s.Type {
	case TypeNotNull:
		return NotNull(s.Name, s.Column), nil
	case TypeNonNegative:
		return NonNegative(s.Name, s.Column), nil
	case TypeNotEmpty:
		return NotEmpty(s.Name, s.Column), nil
	case TypeRange:
		return Range(s.Name, s.Column, s.Min, s.Max), nil
	case TypeRegex:
		return Regex(s.Name, s.Column, s.Pattern)
	case TypeInSet:
		return InSet(s.Name, s.Column, s.Values), nil
	case TypeScript:
		return Script(s.Name, s.Column, s.Script)
	default:
		return nil, fmt.Errorf("%w: %q (rule %s)", ErrUnknownRuleType, s.Type, s.Name)
	}
}

// FromSpecs builds a Set from specs. It returns nil and no error when specs is empty.
func FromSpecs(specs []Spec) (*Set, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	set := &Set{rules: make(map[string]Rule, len(specs))}
	for _, spec := range specs {
		r, err := spec.Build()
		if err != nil {
			return nil, err
		}
		if err := set.Add(r); err != nil {
			return nil, err
		}
	}
	return set, nil
}
