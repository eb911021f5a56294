/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import "testing"

// TestEmbedRoundTrip creates dataset /a/b/c with blocks X#1 (size 10, 2
// files) and X#2 (size 20, 3 files), embeds into an empty inventory, then
// unlinks X#1 and checks the FileSet cache drops its entry too.
func TestEmbedRoundTrip(t *testing.T) {
	inv := New(newMemStore(false), 1000)

	detachedDS := NewDataset("/a/b/c")
	if _, updated := inv.EmbedDataset(detachedDS); !updated {
		t.Fatalf("expected dataset embed to report updated=true")
	}

	x1 := NewBlock("X#1", &Dataset{Name: "/a/b/c"}, 10, 2, false, 0, 0)
	x2 := NewBlock("X#2", &Dataset{Name: "/a/b/c"}, 20, 3, false, 0, 0)

	if _, updated, err := inv.EmbedBlock(x1); err != nil || !updated {
		t.Fatalf("embed X#1: updated=%v err=%v", updated, err)
	}
	if _, updated, err := inv.EmbedBlock(x2); err != nil || !updated {
		t.Fatalf("embed X#2: updated=%v err=%v", updated, err)
	}

	ds := inv.Datasets["/a/b/c"]
	if len(ds.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(ds.Blocks))
	}

	residentX1 := ds.FindBlock("X#1")
	if residentX1 == nil {
		t.Fatalf("X#1 not found after embed")
	}

	// warm the cache so we can observe eviction on unlink
	if _, err := residentX1.Files(inv.Store); err != nil {
		t.Fatalf("loading files for X#1: %v", err)
	}
	if !inv.FileCache.Contains(residentX1) {
		t.Fatalf("expected X#1 to be cached after Files()")
	}

	inv.UnlinkBlock(residentX1)

	if len(ds.Blocks) != 1 {
		t.Fatalf("expected 1 block after unlink, got %d", len(ds.Blocks))
	}
	if inv.FileCache.Contains(residentX1) {
		t.Fatalf("expected X#1 evicted from FileSet cache after unlink")
	}
}

// TestEmbedIdempotent checks embed(E); embed(E) leaves the inventory
// unchanged and the second call reports updated=false.
func TestEmbedIdempotent(t *testing.T) {
	inv := New(newMemStore(false), 1000)
	inv.EmbedDataset(NewDataset("/x/y/z"))

	detached := NewBlock("B#1", &Dataset{Name: "/x/y/z"}, 5, 1, false, 100, 7)

	_, updated1, err := inv.EmbedBlock(detached)
	if err != nil || !updated1 {
		t.Fatalf("first embed: updated=%v err=%v", updated1, err)
	}

	_, updated2, err := inv.EmbedBlock(detached)
	if err != nil {
		t.Fatalf("second embed: err=%v", err)
	}
	if updated2 {
		t.Fatalf("expected second embed of an equal block to report updated=false")
	}

	if len(inv.Datasets["/x/y/z"].Blocks) != 1 {
		t.Fatalf("expected exactly one resident block")
	}
}

// TestEmbedUnknownDatasetFails checks that embedding a Block requires
// its Dataset to already exist, failing with ObjectError otherwise.
func TestEmbedUnknownDatasetFails(t *testing.T) {
	inv := New(newMemStore(false), 1000)
	detached := NewBlock("B#1", &Dataset{Name: "/nope"}, 1, 1, false, 0, 1)

	_, _, err := inv.EmbedBlock(detached)
	if err == nil {
		t.Fatalf("expected ObjectError for unknown dataset")
	}
}

// TestUnlinkRemovesBackReferences checks that unlinking a block replica
// removes it from every back-reference it was added to.
func TestUnlinkRemovesBackReferences(t *testing.T) {
	inv := New(newMemStore(false), 1000)
	inv.EmbedDataset(NewDataset("/d"))
	site, _ := inv.EmbedSite(NewSite("S1", "", "", ""))
	group, _ := inv.EmbedGroup(NewGroup("G1"))

	blk, _, _ := inv.EmbedBlock(NewBlock("b1", &Dataset{Name: "/d"}, 10, 1, false, 0, 1))

	detachedReplica := NewBlockReplica(blk, site, group, false, 0, 0)
	replica, updated := inv.EmbedBlockReplica(detachedReplica)
	if !updated {
		t.Fatalf("expected block replica embed to report updated=true")
	}

	dataset := inv.Datasets["/d"]
	dr := site.FindDatasetReplica(dataset)
	if dr == nil {
		t.Fatalf("expected a dataset replica to be created")
	}

	inv.UnlinkBlockReplica(replica)

	if len(blk.Replicas) != 0 {
		t.Fatalf("expected block's replica list to be empty after unlink")
	}
	if len(site.BlockReplicas) != 0 {
		t.Fatalf("expected site's block replica list to be empty after unlink")
	}
	if len(dr.BlockReplicas) != 0 {
		t.Fatalf("expected dataset replica's block replica list to be empty after unlink")
	}
}
