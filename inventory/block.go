/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import (
	"fmt"

	"github.com/yiiyama/ddm/cmn"
)

// FileState is the lazy-loading state of a Block's file set: Unloaded
// (never fetched), Weak (fetched and living only in the FileSetCache, may
// already be evicted), or Loaded (materialized and detached from the
// cache, e.g. because it was mutated).
type FileState int

const (
	Unloaded FileState = iota
	Weak
	Loaded
)

// Block is the smallest unit of transfer/placement, identified by
// (dataset name, block name).
type Block struct {
	Name       string
	Dataset    *Dataset
	ID         uint64
	Size       int64
	NumFiles   int
	IsOpen     bool
	LastUpdate int64

	// Replicas is the set of BlockReplicas of this block at each site
	// (back-references, non-owning: the owning side is Site/DatasetReplica).
	Replicas []*BlockReplica

	state FileState
	files map[string]*File // valid when state != Unloaded
	cache *FileSetCache
}

func NewBlock(name string, dataset *Dataset, size int64, numFiles int, isOpen bool, lastUpdate int64, id uint64) *Block {
	return &Block{
		Name:       name,
		Dataset:    dataset,
		Size:       size,
		NumFiles:   numFiles,
		IsOpen:     isOpen,
		LastUpdate: lastUpdate,
		ID:         id,
		state:      Unloaded,
	}
}

func (b *Block) FullName() string {
	dsName := ""
	if b.Dataset != nil {
		dsName = b.Dataset.Name
	}
	return fmt.Sprintf("%s#%s", dsName, b.Name)
}

func (b *Block) String() string {
	return fmt.Sprintf("Block %s (size=%d, num_files=%d, is_open=%v, replicas=%d, id=%d)",
		b.FullName(), b.Size, b.NumFiles, b.IsOpen, len(b.Replicas), b.ID)
}

// Equal compares fields, not identity.
func (b *Block) Equal(other *Block) bool {
	return b.Name == other.Name &&
		b.dataSetName() == other.dataSetName() &&
		b.Size == other.Size &&
		b.NumFiles == other.NumFiles &&
		b.IsOpen == other.IsOpen &&
		b.LastUpdate == other.LastUpdate
}

func (b *Block) dataSetName() string {
	if b.Dataset == nil {
		return ""
	}
	return b.Dataset.Name
}

// Files returns the materialized file set, loading it from store if
// unloaded or if the cache entry has been evicted. Does not detach the
// block from the cache: the returned map must be treated as read-only.
func (b *Block) Files(store Store) (map[string]*File, error) {
	if b.state == Loaded {
		return b.files, nil
	}

	if b.state == Weak {
		if files, ok := b.cache.Get(b); ok {
			return files, nil
		}
		b.state = Unloaded
	}

	files, err := b.loadFromStore(store)
	if err != nil {
		return nil, err
	}

	if store.ServerSide() {
		// server-side inventory never retains file sets in memory
		return files, nil
	}

	b.cache.Put(b, files)
	b.state = Weak
	return files, nil
}

// loadForMutation forces the block into Loaded state with a private,
// mutable copy of its file set, detaching it from the cache.
func (b *Block) loadForMutation(store Store) (map[string]*File, error) {
	if store.ServerSide() {
		return nil, cmn.NewOperationalError("Block.files should not be loaded as non-cache on the server side.")
	}

	if b.state == Weak {
		if files, ok := b.cache.Get(b); ok {
			b.cache.Evict(b)
			cp := make(map[string]*File, len(files))
			for k, v := range files {
				cp[k] = v
			}
			b.files = cp
			b.state = Loaded
			return b.files, nil
		}
		b.state = Unloaded
	}

	if b.state == Loaded {
		return b.files, nil
	}

	files, err := b.loadFromStore(store)
	if err != nil {
		return nil, err
	}
	b.files = files
	b.state = Loaded
	return b.files, nil
}

func (b *Block) loadFromStore(store Store) (map[string]*File, error) {
	if b.ID == 0 {
		return make(map[string]*File), nil
	}

	loaded, err := store.GetFiles(b)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*File, len(loaded))
	var size int64
	for _, f := range loaded {
		files[f.LFN] = f
		size += f.Size
	}

	if len(files) != b.NumFiles {
		return nil, cmn.NewIntegrityError("number of files mismatch in %s: predicted %d, loaded %d", b.String(), b.NumFiles, len(files))
	}
	if size != b.Size {
		return nil, cmn.NewIntegrityError("size mismatch in %s: predicted %d, loaded %d", b.String(), b.Size, size)
	}

	return files, nil
}

// AddFile adds a file to the block's materialized set. Does not update
// NumFiles or Size: callers own that bookkeeping.
func (b *Block) AddFile(store Store, f *File) error {
	files, err := b.loadForMutation(store)
	if err != nil {
		return err
	}
	files[f.LFN] = f
	return nil
}

// RemoveFile removes a file from the block's materialized set, a no-op if
// absent.
func (b *Block) RemoveFile(store Store, lfn string) error {
	files, err := b.loadForMutation(store)
	if err != nil {
		return err
	}
	delete(files, lfn)
	return nil
}

func (b *Block) FindFile(store Store, lfn string) (*File, error) {
	files, err := b.Files(store)
	if err != nil {
		return nil, err
	}
	return files[lfn], nil
}

func (b *Block) FindReplica(siteName string) *BlockReplica {
	for _, r := range b.Replicas {
		if r.Site != nil && r.Site.Name == siteName {
			return r
		}
	}
	return nil
}

// copyNoCheck copies mutable fields from other into b, reloading the file
// set first if size/count changed while load is permitted.
func (b *Block) copyNoCheck(store Store, other *Block, loadFiles bool) error {
	b.IsOpen = other.IsOpen
	b.LastUpdate = other.LastUpdate

	if loadFiles && (b.Size != other.Size || b.NumFiles != other.NumFiles) {
		if _, err := b.loadForMutation(store); err != nil {
			return err
		}
	}

	b.Size = other.Size
	b.NumFiles = other.NumFiles
	return nil
}
