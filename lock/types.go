// Package lock aggregates several web-sourced lock lists into
// locked_blocks attributes on datasets.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package lock

import "github.com/yiiyama/ddm/inventory"

// SiteLock is the value attached to Dataset.Attr["locked_blocks"] at one
// site: either the whole dataset replica is locked there, or a specific
// subset of blocks is.
type SiteLock struct {
	WholeDataset bool
	Blocks       map[*inventory.Block]bool
}

// LockedBlocks is the full locked_blocks attribute value: site -> lock.
type LockedBlocks map[*inventory.Site]*SiteLock

// IsLocked reports whether the given block is locked at site, under a
// dataset-level-wins precedence: a whole-dataset lock covers every block.
func (lb LockedBlocks) IsLocked(site *inventory.Site, block *inventory.Block) bool {
	sl, ok := lb[site]
	if !ok {
		return false
	}
	if sl.WholeDataset {
		return true
	}
	return sl.Blocks[block]
}

const lockedBlocksAttr = "locked_blocks"
