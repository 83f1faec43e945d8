package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// FIELD PREDICATES
// ============================================================================

type PredicateOp string

const (
	OpEquals  PredicateOp = "equals"
	OpGte     PredicateOp = "gte"
	OpLte     PredicateOp = "lte"
	OpPattern PredicateOp = "pattern"
)

// FieldPredicate is a closed sum over the four supported operators.
// Exactly one arm is set; this is enforced during unmarshalling so the
// evaluator can dispatch exhaustively on Op.
type FieldPredicate struct {
	Op      PredicateOp
	Equals  any     // operand for OpEquals
	Bound   float64 // operand for OpGte / OpLte
	Pattern string  // operand for OpPattern
}

// MatchSelector is a conjunction of field predicates identifying one entity.
type MatchSelector map[string]FieldPredicate

// UnmarshalYAML accepts either the explicit operator form
// ({equals: v} / {gte: v} / {lte: v} / {pattern: p}) or a bare scalar,
// which is shorthand for equals.
func (p *FieldPredicate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		p.Op = OpEquals
		p.Equals = v
		return nil
	}

	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: field predicate must be a scalar or a mapping", ErrMalformedSpec)
	}

	// Walk the mapping pairs directly; the equals operand may be any YAML
	// value, so it cannot go through a typed aux struct.
	arms := 0
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		operand := node.Content[i+1]

		switch key {
		case "equals":
			var v any
			if err := operand.Decode(&v); err != nil {
				return fmt.Errorf("%w: invalid equals operand: %v", ErrMalformedSpec, err)
			}
			p.Op = OpEquals
			p.Equals = v
		case "gte":
			var bound float64
			if err := operand.Decode(&bound); err != nil {
				return fmt.Errorf("%w: invalid gte operand: %v", ErrMalformedSpec, err)
			}
			p.Op = OpGte
			p.Bound = bound
		case "lte":
			var bound float64
			if err := operand.Decode(&bound); err != nil {
				return fmt.Errorf("%w: invalid lte operand: %v", ErrMalformedSpec, err)
			}
			p.Op = OpLte
			p.Bound = bound
		case "pattern":
			var pattern string
			if err := operand.Decode(&pattern); err != nil {
				return fmt.Errorf("%w: invalid pattern operand: %v", ErrMalformedSpec, err)
			}
			p.Op = OpPattern
			p.Pattern = pattern
		default:
			return fmt.Errorf("%w: unknown predicate operator %q", ErrMalformedSpec, key)
		}
		arms++
	}

	if arms != 1 {
		return fmt.Errorf("%w: field predicate must set exactly one of equals/gte/lte/pattern, got %d", ErrMalformedSpec, arms)
	}
	return nil
}

// String renders the predicate for failure reporting.
func (p FieldPredicate) String() string {
	switch p.Op {
	case OpEquals:
		return fmt.Sprintf("equals(%v)", p.Equals)
	case OpGte:
		return fmt.Sprintf("gte(%v)", p.Bound)
	case OpLte:
		return fmt.Sprintf("lte(%v)", p.Bound)
	case OpPattern:
		return fmt.Sprintf("pattern(%s)", p.Pattern)
	default:
		return "unconstrained"
	}
}
