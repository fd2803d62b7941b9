// Package rules defines the validity rules applied to a dataset.
//
// A Rule is a named predicate over a whole dataset that reports which rows
// pass, either as a boolean mask or as a count. Rules are registered by name
// in a Set, and Set.Evaluate runs each one in isolation: an error or panic in
// one rule is captured as an EvaluationError for that rule alone.
//
// Built-in rules cover the common column checks (not null, non-negative, not
// empty, range, regex, membership). Script rules compile a small Go snippet
// with yaegi so a config file can carry business logic without a rebuild.
package rules
