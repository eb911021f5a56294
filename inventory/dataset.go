/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import "github.com/yiiyama/ddm/cmn"

// Dataset is a named collection of Blocks, owning an ordered sequence of
// Blocks and a list of DatasetReplicas, plus an attribute bag used by
// policy (e.g. locked_blocks, see lock package).
type Dataset struct {
	Name     string
	Blocks   map[string]*Block // keyed by Block.Name, unique within the dataset
	Replicas []*DatasetReplica
	Attr     map[string]interface{}
}

func NewDataset(name string) *Dataset {
	return &Dataset{
		Name:   name,
		Blocks: make(map[string]*Block),
		Attr:   make(map[string]interface{}),
	}
}

func (d *Dataset) FindBlock(name string) *Block {
	return d.Blocks[name]
}

func (d *Dataset) FindReplica(site *Site) *DatasetReplica {
	for _, r := range d.Replicas {
		if r.Site == site {
			return r
		}
	}
	return nil
}

// EmbedBlock embeds a detached Block into the dataset it names within inv.
// The dataset must already exist.
func (inv *Inventory) EmbedBlock(detached *Block) (*Block, bool, error) {
	dsName := detached.dataSetName()

	inv.mu.Lock()
	defer inv.mu.Unlock()

	dataset, ok := inv.Datasets[dsName]
	if !ok {
		return nil, false, cmn.NewObjectError("unknown dataset %s", dsName)
	}

	existing := dataset.FindBlock(detached.Name)
	if existing == nil {
		block := NewBlock(detached.Name, dataset, detached.Size, detached.NumFiles, detached.IsOpen, detached.LastUpdate, detached.ID)
		block.cache = inv.FileCache
		dataset.Blocks[block.Name] = block
		return block, true, nil
	}

	if existing.Equal(detached) {
		return existing, false, nil
	}

	if err := existing.copyNoCheck(inv.Store, detached, !inv.HasStore); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// UnlinkBlock removes block from its dataset and evicts it from the
// FileSet cache.
func (inv *Inventory) UnlinkBlock(block *Block) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.unlinkBlockLocked(block)
}

func (inv *Inventory) unlinkBlockLocked(block *Block) {
	for _, replica := range append([]*BlockReplica(nil), block.Replicas...) {
		inv.unlinkBlockReplicaLocked(replica)
	}

	if block.Dataset != nil {
		delete(block.Dataset.Blocks, block.Name)
	}

	inv.FileCache.Evict(block)
}

// EmbedDataset embeds a detached Dataset (name + attr only; blocks/replicas
// are embedded separately) into the inventory.
func (inv *Inventory) EmbedDataset(detached *Dataset) (*Dataset, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if existing, ok := inv.Datasets[detached.Name]; ok {
		return existing, false
	}

	ds := NewDataset(detached.Name)
	for k, v := range detached.Attr {
		ds.Attr[k] = v
	}
	inv.Datasets[ds.Name] = ds
	return ds, true
}

// UnlinkDataset unlinks all of a dataset's blocks and replicas, then
// removes the dataset itself.
func (inv *Inventory) UnlinkDataset(dataset *Dataset) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, block := range dataset.Blocks {
		inv.unlinkBlockLocked(block)
	}
	for _, replica := range append([]*DatasetReplica(nil), dataset.Replicas...) {
		inv.unlinkDatasetReplicaLocked(replica)
	}

	delete(inv.Datasets, dataset.Name)
}
