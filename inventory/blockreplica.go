/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// BlockReplica identifies a (block, site) pair, optionally owned by a
// Group, optionally custodial.
type BlockReplica struct {
	Block       *Block
	Site        *Site
	Group       *Group
	IsCustodial bool
	TimeCreated int64
	TimeUpdated int64
}

func NewBlockReplica(block *Block, site *Site, group *Group, isCustodial bool, timeCreated, timeUpdated int64) *BlockReplica {
	return &BlockReplica{
		Block:       block,
		Site:        site,
		Group:       group,
		IsCustodial: isCustodial,
		TimeCreated: timeCreated,
		TimeUpdated: timeUpdated,
	}
}

// unlinkBlockReplicaLocked removes r from its block's and site's
// back-reference sets and from its owning DatasetReplica. Caller holds
// inv.mu.
func (inv *Inventory) unlinkBlockReplicaLocked(r *BlockReplica) {
	if r.Block != nil {
		for i, br := range r.Block.Replicas {
			if br == r {
				r.Block.Replicas = append(r.Block.Replicas[:i], r.Block.Replicas[i+1:]...)
				break
			}
		}
	}
	if r.Site != nil {
		r.Site.removeBlockReplica(r)
		if r.Block != nil && r.Block.Dataset != nil {
			if dr, ok := r.Site.DatasetReplicas[r.Block.Dataset]; ok {
				dr.removeBlockReplica(r)
			}
		}
	}
}

// UnlinkBlockReplica removes r from the graph entirely: unlinking a
// replica removes it from both its site and its block/dataset-replica.
func (inv *Inventory) UnlinkBlockReplica(r *BlockReplica) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.unlinkBlockReplicaLocked(r)
}
