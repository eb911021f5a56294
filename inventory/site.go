/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// Site is a storage location identified by name, owning a set of
// DatasetReplicas and, transitively, a set of BlockReplicas.
type Site struct {
	Name        string
	Host        string
	StorageType string
	Backend     string

	DatasetReplicas map[*Dataset]*DatasetReplica
	BlockReplicas   []*BlockReplica
	Occupancy       int64 // sum of the sizes of resident block replicas
}

func NewSite(name, host, storageType, backend string) *Site {
	return &Site{
		Name:            name,
		Host:            host,
		StorageType:     storageType,
		Backend:         backend,
		DatasetReplicas: make(map[*Dataset]*DatasetReplica),
	}
}

func (s *Site) FindDatasetReplica(dataset *Dataset) *DatasetReplica {
	return s.DatasetReplicas[dataset]
}

// SetBlockReplicas replaces the site's flattened block-replica view and
// recomputes occupancy.
func (s *Site) SetBlockReplicas(replicas []*BlockReplica) {
	s.BlockReplicas = replicas
	var occ int64
	for _, r := range replicas {
		if r.Block != nil {
			occ += r.Block.Size
		}
	}
	s.Occupancy = occ
}

// AddBlockReplica appends a single block replica to the flattened view and
// updates occupancy incrementally, used when restoring replicas that were
// stashed by partition_replicas.
func (s *Site) AddBlockReplica(r *BlockReplica) {
	s.BlockReplicas = append(s.BlockReplicas, r)
	if r.Block != nil {
		s.Occupancy += r.Block.Size
	}
}

func (s *Site) removeBlockReplica(r *BlockReplica) {
	for i, br := range s.BlockReplicas {
		if br == r {
			s.BlockReplicas = append(s.BlockReplicas[:i], s.BlockReplicas[i+1:]...)
			if r.Block != nil {
				s.Occupancy -= r.Block.Size
			}
			return
		}
	}
}

// EmbedSite embeds a detached Site by name.
func (inv *Inventory) EmbedSite(detached *Site) (*Site, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if existing, ok := inv.Sites[detached.Name]; ok {
		existing.Host = detached.Host
		existing.StorageType = detached.StorageType
		existing.Backend = detached.Backend
		return existing, false
	}

	site := NewSite(detached.Name, detached.Host, detached.StorageType, detached.Backend)
	inv.Sites[site.Name] = site
	return site, true
}
