package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/nao1215/dqmon/internal/dataset"
)

// ErrScriptSignature is returned when a script lacks the expected entry function.
var ErrScriptSignature = errors.New("script entry function has the wrong signature")

// scriptRule runs a compiled yaegi function.
type scriptRule struct {
	name   string
	column string
	valid  func(interface{}) bool
	count  func([]map[string]interface{}) int
}

// Script compiles src as a package main Go snippet.
//
// With a column, src must define
//
//	func Valid(v interface{}) bool
//
// which is called once per cell (nil for null). Without a column, src must define
//
//	func Count(rows []map[string]interface{}) int
//
// which receives every row and returns the number of valid ones.
func Script(name, column, src string) (Rule, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("rule %s: failed to load stdlib symbols: %w", name, err)
	}

	if !strings.HasPrefix(strings.TrimSpace(src), "package ") {
		src = "package main\n\n" + src
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("rule %s: failed to compile script: %w", name, err)
	}

	r := &scriptRule{name: name, column: column}

	if column != "" {
		v, err := i.Eval("Valid")
		if err != nil {
			return nil, fmt.Errorf("rule %s: script has no Valid function: %w", name, err)
		}
		fn, ok := v.Interface().(func(interface{}) bool)
		if !ok {
			return nil, fmt.Errorf("rule %s: %w: want func(interface{}) bool", name, ErrScriptSignature)
		}
		r.valid = fn
		return r, nil
	}

	v, err := i.Eval("Count")
	if err != nil {
		return nil, fmt.Errorf("rule %s: script has no Count function: %w", name, err)
	}
	fn, ok := v.Interface().(func([]map[string]interface{}) int)
	if !ok {
		return nil, fmt.Errorf("rule %s: %w: want func([]map[string]interface{}) int", name, ErrScriptSignature)
	}
	r.count = fn
	return r, nil
}

func (r *scriptRule) Name() string { return r.name }

func (r *scriptRule) Evaluate(ds *dataset.Dataset) (Outcome, error) {
	if r.valid != nil {
		col, err := ds.Column(r.column)
		if err != nil {
			return Outcome{}, err
		}
		mask := make([]bool, col.Len())
		for i := range mask {
			mask[i] = r.valid(col.At(i).Interface())
		}
		return Mask(mask), nil
	}

	rows := make([]map[string]interface{}, ds.Len())
	for i := range rows {
		row := ds.Row(i)
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[k] = v.Interface()
		}
		rows[i] = m
	}
	return Count(r.count(rows)), nil
}
