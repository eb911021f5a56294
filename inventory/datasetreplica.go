/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// DatasetReplica is an aggregate over a subset of a dataset's
// BlockReplicas at one site.
type DatasetReplica struct {
	Dataset       *Dataset
	Site          *Site
	BlockReplicas []*BlockReplica
	IsPartial     bool
	IsCustodial   bool
}

func NewDatasetReplica(dataset *Dataset, site *Site, isPartial, isCustodial bool) *DatasetReplica {
	return &DatasetReplica{
		Dataset:     dataset,
		Site:        site,
		IsPartial:   isPartial,
		IsCustodial: isCustodial,
	}
}

// updateDerived recomputes IsPartial/IsCustodial from the current
// BlockReplicas set.
func (dr *DatasetReplica) updateDerived() {
	if dr.Dataset != nil {
		dr.IsPartial = len(dr.BlockReplicas) != len(dr.Dataset.Blocks)
	}
	custodial := false
	for _, br := range dr.BlockReplicas {
		if br.IsCustodial {
			custodial = true
			break
		}
	}
	dr.IsCustodial = custodial
}

func (dr *DatasetReplica) removeBlockReplica(r *BlockReplica) {
	for i, br := range dr.BlockReplicas {
		if br == r {
			dr.BlockReplicas = append(dr.BlockReplicas[:i], dr.BlockReplicas[i+1:]...)
			dr.updateDerived()
			return
		}
	}
}

// EmbedBlockReplica embeds a detached BlockReplica, creating the owning
// DatasetReplica if this is the first block replica of the dataset at
// that site.
func (inv *Inventory) EmbedBlockReplica(detached *BlockReplica) (*BlockReplica, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	block := detached.Block
	site := detached.Site

	for _, r := range block.Replicas {
		if r.Site == site {
			r.Group = detached.Group
			r.IsCustodial = detached.IsCustodial
			r.TimeCreated = detached.TimeCreated
			r.TimeUpdated = detached.TimeUpdated
			return r, false
		}
	}

	r := NewBlockReplica(block, site, detached.Group, detached.IsCustodial, detached.TimeCreated, detached.TimeUpdated)
	block.Replicas = append(block.Replicas, r)
	site.AddBlockReplica(r)

	dataset := block.Dataset
	dr, ok := site.DatasetReplicas[dataset]
	if !ok {
		dr = NewDatasetReplica(dataset, site, false, false)
		site.DatasetReplicas[dataset] = dr
		dataset.Replicas = append(dataset.Replicas, dr)
	}
	dr.BlockReplicas = append(dr.BlockReplicas, r)
	dr.updateDerived()

	return r, true
}

// unlinkDatasetReplicaLocked removes dr and every block replica it owns.
// Caller holds inv.mu.
func (inv *Inventory) unlinkDatasetReplicaLocked(dr *DatasetReplica) {
	for _, r := range append([]*BlockReplica(nil), dr.BlockReplicas...) {
		inv.unlinkBlockReplicaLocked(r)
	}

	if dr.Site != nil {
		delete(dr.Site.DatasetReplicas, dr.Dataset)
	}
	if dr.Dataset != nil {
		for i, other := range dr.Dataset.Replicas {
			if other == dr {
				dr.Dataset.Replicas = append(dr.Dataset.Replicas[:i], dr.Dataset.Replicas[i+1:]...)
				break
			}
		}
	}
}

func (inv *Inventory) UnlinkDatasetReplica(dr *DatasetReplica) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.unlinkDatasetReplicaLocked(dr)
}

// FindDatasetReplica looks up the dataset replica resident at site.
func (inv *Inventory) FindDatasetReplica(site *Site, dataset *Dataset) *DatasetReplica {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return site.DatasetReplicas[dataset]
}
