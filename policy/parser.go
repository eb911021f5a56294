/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import (
	"sort"
	"strings"
	"sync"

	"github.com/yiiyama/ddm/cmn"
	"github.com/yiiyama/ddm/inventory"
)

var verbTokens = map[string]Verb{
	"Protect":      Protect,
	"Dismiss":      Dismiss,
	"Delete":       Delete,
	"ProtectBlock": ProtectBlock,
	"DeleteBlock":  DeleteBlock,
}

// PolicyLine is one parsed rule line: an AND-chained condition paired
// with the verb it produces when matched.
type PolicyLine struct {
	Condition   *ReplicaCondition
	Verb        Verb
	ConditionID int

	cacheMu sync.Mutex
	cached  map[*inventory.DatasetReplica]*Decision
}

// SortKey orders candidate replicas by one or more numeric/time variables
// before a policy stack is applied, ascending or descending per variable.
type SortKey struct {
	vars []sortVar
}

type sortVar struct {
	extract func(ctx *EvalContext, dr *inventory.DatasetReplica, br *inventory.BlockReplica) interface{}
	reverse bool
}

func (k *SortKey) addVar(def *ReplicaVarDef, reverse bool) {
	k.vars = append(k.vars, sortVar{extract: def.Extract, reverse: reverse})
}

// Less orders two dataset replicas lexicographically over the configured
// variables, evaluated against their first block replica (dataset-scoped
// sort variables are constant across block replicas of the same replica).
func (k *SortKey) Less(ctx *EvalContext, a, b *inventory.DatasetReplica) bool {
	var abr, bbr *inventory.BlockReplica
	if len(a.BlockReplicas) > 0 {
		abr = a.BlockReplicas[0]
	}
	if len(b.BlockReplicas) > 0 {
		bbr = b.BlockReplicas[0]
	}
	for _, v := range k.vars {
		av := toFloat(v.extract(ctx, a, abr))
		bv := toFloat(v.extract(ctx, b, bbr))
		if av == bv {
			continue
		}
		if v.reverse {
			return av > bv
		}
		return av < bv
	}
	return false
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

// Policy is a partition's parsed policy stack: the site-target/trigger/
// release site conditions, an ordered list of policy lines with a
// fall-back default verb, and an optional sort key for candidate
// ordering.
type Policy struct {
	Partition       *inventory.Partition
	TargetSiteDef   *SiteCondition
	DeletionTrigger *SiteCondition
	StopCondition   *SiteCondition
	Lines           []*PolicyLine
	DefaultVerb     Verb
	SortKey         *SortKey
	NeedIteration   bool
	UsedPlugins     map[string]bool

	untracked map[*inventory.DatasetReplica][]*inventory.BlockReplica
}

// ParseLines parses a textual policy stack (blank lines and lines
// starting with "#" are ignored) for the given partition.
func ParseLines(partition *inventory.Partition, lines []string) (*Policy, error) {
	p := &Policy{
		Partition:   partition,
		UsedPlugins: make(map[string]bool),
		untracked:   make(map[*inventory.DatasetReplica][]*inventory.BlockReplica),
	}

	var conditionSeq int
	defaultSet := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		words := strings.Fields(line)
		keyword := words[0]

		switch keyword {
		case "On", "When", "Until", "Order":
			if len(words) < 2 {
				return nil, cmn.NewConfigurationError("malformed line: %q", line)
			}
			rest := strings.Join(words[1:], " ")

			switch keyword {
			case "On":
				cond, err := ParseSiteCondition(rest)
				if err != nil {
					return nil, err
				}
				p.TargetSiteDef = cond
			case "When":
				cond, err := ParseSiteCondition(rest)
				if err != nil {
					return nil, err
				}
				p.DeletionTrigger = cond
			case "Until":
				cond, err := ParseSiteCondition(rest)
				if err != nil {
					return nil, err
				}
				p.StopCondition = cond
			case "Order":
				if err := p.parseOrder(words[1:]); err != nil {
					return nil, err
				}
			}

		case "Protect", "Dismiss", "Delete", "ProtectBlock", "DeleteBlock":
			verb := verbTokens[keyword]
			if len(words) == 1 {
				p.DefaultVerb = verb
				defaultSet = true
				continue
			}
			cond, err := ParseReplicaCondition(strings.Join(words[1:], " "))
			if err != nil {
				return nil, err
			}
			conditionSeq++
			p.Lines = append(p.Lines, &PolicyLine{
				Condition:   cond,
				Verb:        verb,
				ConditionID: conditionSeq,
				cached:      make(map[*inventory.DatasetReplica]*Decision),
			})

		default:
			return nil, cmn.NewConfigurationError("unrecognized policy line: %q", line)
		}
	}

	if p.TargetSiteDef == nil {
		return nil, cmn.NewConfigurationError("target site definition missing")
	}
	if p.DeletionTrigger == nil || p.StopCondition == nil {
		return nil, cmn.NewConfigurationError("deletion trigger and release expressions are missing")
	}
	if !defaultSet {
		return nil, cmn.NewConfigurationError("default decision not given")
	}

	for _, cond := range []*SiteCondition{p.TargetSiteDef, p.DeletionTrigger, p.StopCondition} {
		for plugin := range cond.Plugins {
			p.UsedPlugins[plugin] = true
		}
	}
	for _, line := range p.Lines {
		for plugin := range line.Condition.Plugins {
			p.UsedPlugins[plugin] = true
		}
		if !line.Condition.Static {
			p.NeedIteration = true
		} else if line.Verb.isBlockVerb() {
			p.NeedIteration = true
		}
	}

	return p, nil
}

func (p *Policy) parseOrder(words []string) error {
	i := 0
	for i < len(words) {
		direction := words[i]
		if direction == "none" {
			return nil
		}
		var reverse bool
		switch direction {
		case "increasing":
			reverse = false
		case "decreasing":
			reverse = true
		default:
			return cmn.NewConfigurationError("invalid sorting order: %s", direction)
		}
		if i+1 >= len(words) {
			return cmn.NewConfigurationError("malformed Order line")
		}
		varname := words[i+1]
		i += 2

		for plugin, names := range RequiredReplicaPlugins {
			for _, n := range names {
				if n == varname {
					p.UsedPlugins[plugin] = true
				}
			}
		}

		def, ok := ReplicaVarDefs[varname]
		if !ok {
			return cmn.NewConfigurationError("unknown sort variable %q", varname)
		}
		if def.Type != NumericType && def.Type != TimeType {
			return cmn.NewConfigurationError("cannot use non-numeric type to sort: %s", varname)
		}
		if p.SortKey == nil {
			p.SortKey = &SortKey{}
		}
		p.SortKey.addVar(def, reverse)
	}
	return nil
}

// SortedReplicas returns replicas ordered by the policy's configured
// SortKey, stable with respect to input order when no key is set.
func (p *Policy) SortedReplicas(ctx *EvalContext, replicas []*inventory.DatasetReplica) []*inventory.DatasetReplica {
	out := append([]*inventory.DatasetReplica(nil), replicas...)
	if p.SortKey == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return p.SortKey.Less(ctx, out[i], out[j]) })
	return out
}
