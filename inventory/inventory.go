/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import (
	"sync"

	"github.com/yiiyama/ddm/3rdparty/glog"
)

// Inventory is the keyed registry of the whole graph: it exclusively owns
// Datasets, Sites, and Groups, and exposes the embed/unlink-driven
// add/update/remove operations everything else is built from.
type Inventory struct {
	mu sync.Mutex

	Sites      map[string]*Site
	Groups     map[string]*Group
	Datasets   map[string]*Dataset
	Partitions map[string]*Partition

	Store     Store
	HasStore  bool // true for the server-side, authoritative inventory
	FileCache *FileSetCache
}

func New(store Store, fileCacheDepth int) *Inventory {
	return &Inventory{
		Sites:      make(map[string]*Site),
		Groups:     make(map[string]*Group),
		Datasets:   make(map[string]*Dataset),
		Partitions: make(map[string]*Partition),
		Store:      store,
		HasStore:   store.ServerSide(),
		FileCache:  NewFileSetCache(fileCacheDepth),
	}
}

// Update is idempotent with respect to equal entities: embedding an
// entity identical to the resident one is a no-op that reports no change.
func (inv *Inventory) UpdateBlock(detached *Block) (updated bool, err error) {
	_, updated, err = inv.EmbedBlock(detached)
	if err != nil {
		glog.FastV(4, glog.SmoduleInventory).Infof("update block %s failed: %v", detached.FullName(), err)
	}
	return updated, err
}

func (inv *Inventory) UpdateDataset(detached *Dataset) (updated bool) {
	_, updated = inv.EmbedDataset(detached)
	return updated
}

func (inv *Inventory) UpdateSite(detached *Site) (updated bool) {
	_, updated = inv.EmbedSite(detached)
	return updated
}

func (inv *Inventory) UpdateGroup(detached *Group) (updated bool) {
	_, updated = inv.EmbedGroup(detached)
	return updated
}

func (inv *Inventory) UpdateBlockReplica(detached *BlockReplica) (updated bool) {
	_, updated = inv.EmbedBlockReplica(detached)
	return updated
}

// DeleteBlock resolves block by identity through the registry and unlinks
// it; deleting an unknown block is a no-op.
func (inv *Inventory) DeleteBlock(datasetName, blockName string) {
	inv.mu.Lock()
	dataset, ok := inv.Datasets[datasetName]
	if !ok {
		inv.mu.Unlock()
		return
	}
	block := dataset.FindBlock(blockName)
	if block == nil {
		inv.mu.Unlock()
		return
	}
	inv.unlinkBlockLocked(block)
	inv.mu.Unlock()
}

func (inv *Inventory) DeleteDataset(name string) {
	inv.mu.Lock()
	dataset, ok := inv.Datasets[name]
	inv.mu.Unlock()
	if !ok {
		return
	}
	inv.UnlinkDataset(dataset)
}
