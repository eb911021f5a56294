/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import "github.com/yiiyama/ddm/inventory"

// Evaluate checks whether l's condition matches dr, returning the
// resulting Decision (or nil if no match). Static conditions are cached
// per dataset replica so repeated evaluation across an iterative policy
// run is cheap.
func (l *PolicyLine) Evaluate(ctx *EvalContext, dr *inventory.DatasetReplica) (*Decision, error) {
	if l.Condition.Static {
		l.cacheMu.Lock()
		cached, ok := l.cached[dr]
		l.cacheMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	matched, err := matchesAnyBlock(ctx, l.Condition, dr)
	if err != nil {
		return nil, err
	}

	var decision *Decision
	if matched {
		if l.Verb.isBlockVerb() {
			blocks, err := l.Condition.MatchingBlocks(ctx, dr)
			if err != nil {
				return nil, err
			}
			if len(blocks) == len(dr.BlockReplicas) {
				decision = &Decision{Replica: dr, Verb: l.Verb.datasetLevel(), ConditionID: l.ConditionID}
			} else {
				decision = &Decision{Replica: dr, Verb: l.Verb, ConditionID: l.ConditionID, BlockReplicas: blocks}
			}
		} else {
			decision = &Decision{Replica: dr, Verb: l.Verb, ConditionID: l.ConditionID}
		}
	}

	if l.Condition.Static {
		l.cacheMu.Lock()
		l.cached[dr] = decision
		l.cacheMu.Unlock()
	}

	return decision, nil
}

// matchesAnyBlock reports whether the condition holds for at least one
// block replica of dr: a dataset-scoped term (e.g. dataset_name) holds
// trivially for all of them, so this is equivalent to testing the first
// one whenever no block-level term is present, but the general form
// below is correct regardless.
func matchesAnyBlock(ctx *EvalContext, cond *ReplicaCondition, dr *inventory.DatasetReplica) (bool, error) {
	if len(dr.BlockReplicas) == 0 {
		return false, nil
	}
	for _, br := range dr.BlockReplicas {
		ok, err := cond.Match(ctx, dr, br)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Evaluate runs the policy stack against dr, returning the first
// matching line's decision or the default verb if nothing matched.
func (p *Policy) Evaluate(ctx *EvalContext, dr *inventory.DatasetReplica) (*Decision, error) {
	for _, line := range p.Lines {
		decision, err := line.Evaluate(ctx, dr)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			return decision, nil
		}
	}
	return &Decision{Replica: dr, Verb: p.DefaultVerb, ConditionID: 0}, nil
}

// PartitionReplicas restricts every dataset's replicas and sites' block
// replica views down to block replicas that belong to the policy's
// partition, at the given target sites. Block replicas excluded from the
// partition are stashed so RestoreReplicas can put them back once the
// run completes. Returns the set of dataset replicas left in scope.
func (p *Policy) PartitionReplicas(inv *inventory.Inventory, targetSites map[*inventory.Site]bool) map[*inventory.DatasetReplica]bool {
	inScope := make(map[*inventory.DatasetReplica]bool)
	siteBlockReplicas := make(map[*inventory.Site][]*inventory.BlockReplica)

	for _, dataset := range inv.Datasets {
		kept := dataset.Replicas[:0:0]
		for _, dr := range dataset.Replicas {
			if !targetSites[dr.Site] {
				kept = append(kept, dr)
				continue
			}

			var partBlocks, restBlocks []*inventory.BlockReplica
			for _, br := range dr.BlockReplicas {
				if p.Partition.Predicate(br) {
					partBlocks = append(partBlocks, br)
				} else {
					restBlocks = append(restBlocks, br)
				}
			}

			if len(partBlocks) == 0 {
				p.untracked[dr] = dr.BlockReplicas
				dr.BlockReplicas = nil
				delete(dr.Site.DatasetReplicas, dr.Dataset)
				continue
			}

			if len(restBlocks) > 0 {
				p.untracked[dr] = restBlocks
			}
			dr.BlockReplicas = partBlocks
			siteBlockReplicas[dr.Site] = append(siteBlockReplicas[dr.Site], partBlocks...)
			inScope[dr] = true
			kept = append(kept, dr)
		}
		dataset.Replicas = kept
	}

	for site := range targetSites {
		site.SetBlockReplicas(siteBlockReplicas[site])
	}

	return inScope
}

// RestoreReplicas puts back every block replica stashed by
// PartitionReplicas, undoing the partitioning once the run completes.
func (p *Policy) RestoreReplicas() {
	for dr, blocks := range p.untracked {
		found := false
		for _, other := range dr.Dataset.Replicas {
			if other == dr {
				found = true
				break
			}
		}
		if !found {
			dr.Dataset.Replicas = append(dr.Dataset.Replicas, dr)
		}
		dr.Site.DatasetReplicas[dr.Dataset] = dr

		for _, br := range blocks {
			dr.BlockReplicas = append(dr.BlockReplicas, br)
			dr.Site.AddBlockReplica(br)
		}
	}
	p.untracked = make(map[*inventory.DatasetReplica][]*inventory.BlockReplica)
}
