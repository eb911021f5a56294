/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import (
	"path"
	"strconv"
	"strings"

	"github.com/yiiyama/ddm/cmn"
	"github.com/yiiyama/ddm/inventory"
)

// Op is a comparison operator usable in a condition term.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opTokens = map[string]Op{
	"==": OpEq, "!=": OpNe, "<=": OpLe, ">=": OpGe, "<": OpLt, ">": OpGt,
}

// Term is a single "name op value" comparison, the atom of an AND-chained
// condition line.
type Term struct {
	VarName string
	Op      Op
	Raw     string // the literal text of the value, before type conversion

	numeric   float64
	isNumeric bool
}

func parseTerm(text string) (*Term, error) {
	for _, tok := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if idx := strings.Index(text, tok); idx >= 0 {
			name := strings.TrimSpace(text[:idx])
			value := strings.TrimSpace(text[idx+len(tok):])
			t := &Term{VarName: name, Op: opTokens[tok], Raw: value}
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				t.numeric = f
				t.isNumeric = true
			}
			return t, nil
		}
	}
	return nil, cmn.NewConfigurationError("malformed condition term: %q", text)
}

func splitTerms(text string) []string {
	parts := strings.Split(text, "&&")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// evalTerm compares a term against a value of the declared VarType.
func evalTerm(t *Term, typ VarType, value interface{}) (bool, error) {
	switch typ {
	case NumericType, TimeType:
		var v float64
		switch x := value.(type) {
		case float64:
			v = x
		case int64:
			v = float64(x)
		case int:
			v = float64(x)
		default:
			return false, cmn.NewConfigurationError("non-numeric value for numeric variable %s", t.VarName)
		}
		if !t.isNumeric {
			return false, cmn.NewConfigurationError("non-numeric comparison value %q for %s", t.Raw, t.VarName)
		}
		switch t.Op {
		case OpEq:
			return v == t.numeric, nil
		case OpNe:
			return v != t.numeric, nil
		case OpLt:
			return v < t.numeric, nil
		case OpLe:
			return v <= t.numeric, nil
		case OpGt:
			return v > t.numeric, nil
		case OpGe:
			return v >= t.numeric, nil
		}

	case BoolType:
		v, _ := value.(bool)
		want := t.Raw == "true" || t.Raw == "True" || t.Raw == "1"
		switch t.Op {
		case OpEq:
			return v == want, nil
		case OpNe:
			return v != want, nil
		default:
			return false, cmn.NewConfigurationError("operator not valid for boolean variable %s", t.VarName)
		}

	case TextType:
		s, _ := value.(string)
		switch t.Op {
		case OpEq:
			ok, err := path.Match(t.Raw, s)
			return ok && err == nil, err
		case OpNe:
			ok, err := path.Match(t.Raw, s)
			return !(ok && err == nil), err
		default:
			return false, cmn.NewConfigurationError("operator not valid for text variable %s", t.VarName)
		}
	}
	return false, cmn.NewConfigurationError("unhandled variable type for %s", t.VarName)
}

// ReplicaCondition is an AND-chained list of terms evaluated against a
// DatasetReplica/BlockReplica pair.
type ReplicaCondition struct {
	Text   string
	terms  []*replicaTermBinding
	Static bool
	Plugins map[string]bool
}

type replicaTermBinding struct {
	term *Term
	def  *ReplicaVarDef
}

// ParseReplicaCondition builds a ReplicaCondition from its textual form,
// e.g. "replica_age > 30 && is_custodial == false".
func ParseReplicaCondition(text string) (*ReplicaCondition, error) {
	c := &ReplicaCondition{Text: text, Static: true, Plugins: make(map[string]bool)}
	for _, raw := range splitTerms(text) {
		term, err := parseTerm(raw)
		if err != nil {
			return nil, err
		}
		def, ok := ReplicaVarDefs[term.VarName]
		if !ok {
			return nil, cmn.NewConfigurationError("unknown replica variable %q", term.VarName)
		}
		c.terms = append(c.terms, &replicaTermBinding{term: term, def: def})
		if !def.Static {
			c.Static = false
		}
		if def.Plugin != "" {
			c.Plugins[def.Plugin] = true
		}
	}
	return c, nil
}

// Match reports whether every term of the condition holds for the given
// block replica within dr.
func (c *ReplicaCondition) Match(ctx *EvalContext, dr *inventory.DatasetReplica, br *inventory.BlockReplica) (bool, error) {
	for _, b := range c.terms {
		value := b.def.Extract(ctx, dr, br)
		ok, err := evalTerm(b.term, b.def.Type, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// MatchingBlocks returns the subset of dr's block replicas that satisfy
// the condition, used by block-level actions.
func (c *ReplicaCondition) MatchingBlocks(ctx *EvalContext, dr *inventory.DatasetReplica) ([]*inventory.BlockReplica, error) {
	var out []*inventory.BlockReplica
	for _, br := range dr.BlockReplicas {
		ok, err := c.Match(ctx, dr, br)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, br)
		}
	}
	return out, nil
}

func (c *ReplicaCondition) String() string { return c.Text }

// SiteCondition is the site-scoped analogue of ReplicaCondition, used by
// On/When/Until lines.
type SiteCondition struct {
	Text    string
	terms   []*siteTermBinding
	Static  bool
	Plugins map[string]bool
}

type siteTermBinding struct {
	term *Term
	def  *SiteVarDef
}

func ParseSiteCondition(text string) (*SiteCondition, error) {
	c := &SiteCondition{Text: text, Static: true, Plugins: make(map[string]bool)}
	for _, raw := range splitTerms(text) {
		term, err := parseTerm(raw)
		if err != nil {
			return nil, err
		}
		def, ok := SiteVarDefs[term.VarName]
		if !ok {
			return nil, cmn.NewConfigurationError("unknown site variable %q", term.VarName)
		}
		c.terms = append(c.terms, &siteTermBinding{term: term, def: def})
		if !def.Static {
			c.Static = false
		}
		if def.Plugin != "" {
			c.Plugins[def.Plugin] = true
		}
	}
	return c, nil
}

func (c *SiteCondition) Match(ctx *EvalContext, site *inventory.Site) (bool, error) {
	for _, b := range c.terms {
		value := b.def.Extract(ctx, site)
		ok, err := evalTerm(b.term, b.def.Type, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *SiteCondition) String() string { return c.Text }
