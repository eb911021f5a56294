/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package lock

import (
	"testing"

	"github.com/yiiyama/ddm/inventory"
)

type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(url string) ([]byte, error) { return f.bodies[url], nil }
func (f *fakeFetcher) Head404(string) (bool, error)      { return true, nil }

func setupInventory(t *testing.T) (*inventory.Inventory, *inventory.Site, *inventory.Site) {
	t.Helper()
	inv := inventory.New(testStore{}, 1000)
	inv.EmbedDataset(inventory.NewDataset("/d1"))
	s1, _ := inv.EmbedSite(inventory.NewSite("S1", "", "", ""))
	s2, _ := inv.EmbedSite(inventory.NewSite("S2", "", "", ""))

	dataset := inv.Datasets["/d1"]
	block, _, err := inv.EmbedBlock(inventory.NewBlock("b1", &inventory.Dataset{Name: "/d1"}, 0, 0, false, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	for _, site := range []*inventory.Site{s1, s2} {
		inv.EmbedBlockReplica(inventory.NewBlockReplica(block, site, nil, false, 0, 0))
	}
	_ = dataset
	return inv, s1, s2
}

type testStore struct{}

func (testStore) ServerSide() bool                                            { return false }
func (testStore) GetFiles(*inventory.Block) ([]*inventory.File, error)        { return nil, nil }
func (testStore) SaveSite(*inventory.Site) error                              { return nil }
func (testStore) SaveGroup(*inventory.Group) error                            { return nil }
func (testStore) SaveDataset(*inventory.Dataset) error                        { return nil }
func (testStore) SaveBlock(*inventory.Block) error                           { return nil }
func (testStore) SaveBlockReplica(*inventory.BlockReplica) error             { return nil }
func (testStore) SaveDatasetReplica(*inventory.DatasetReplica) error         { return nil }
func (testStore) DeleteSite(*inventory.Site) error                           { return nil }
func (testStore) DeleteGroup(*inventory.Group) error                         { return nil }
func (testStore) DeleteDataset(*inventory.Dataset) error                     { return nil }
func (testStore) DeleteBlock(*inventory.Block) error                        { return nil }
func (testStore) DeleteBlockReplica(*inventory.BlockReplica) error          { return nil }
func (testStore) DeleteDatasetReplica(*inventory.DatasetReplica) error      { return nil }

// TestAggregatorDatasetLockIsSticky checks that a LIST_OF_DATASETS source
// locking /d1 dataset-wide at every replica site isn't downgraded by a
// later SITE_TO_DATASETS source naming a block-level lock at the same site.
func TestAggregatorDatasetLockIsSticky(t *testing.T) {
	inv, s1, s2 := setupInventory(t)

	listBody, _ := json.Marshal([]string{"/d1"})
	siteBody, _ := json.Marshal(map[string]map[string]struct {
		Lock bool `json:"lock"`
	}{
		"S1": {"/d1#b1": {Lock: true}},
	})

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"http://a": listBody,
		"http://b": siteBody,
	}}

	agg := NewAggregator([]*Source{
		{Name: "A", URL: "http://a", ContentType: ListOfDatasets},
		{Name: "B", URL: "http://b", ContentType: SiteToDatasets},
	}, fetcher)

	if err := agg.Update(inv); err != nil {
		t.Fatal(err)
	}

	locked := inv.Datasets["/d1"].Attr["locked_blocks"].(LockedBlocks)

	if !locked[s1].WholeDataset {
		t.Fatalf("expected S1 to remain dataset-level locked despite a later block-level entry")
	}
	if !locked[s2].WholeDataset {
		t.Fatalf("expected S2 to be dataset-level locked from source A")
	}
}

// TestAggregatorClearsBetweenUpdates checks that locked_blocks is cleared
// at the start of each update.
func TestAggregatorClearsBetweenUpdates(t *testing.T) {
	inv, _, _ := setupInventory(t)

	listBody, _ := json.Marshal([]string{"/d1"})
	fetcher := &fakeFetcher{bodies: map[string][]byte{"http://a": listBody}}
	agg := NewAggregator([]*Source{{Name: "A", URL: "http://a", ContentType: ListOfDatasets}}, fetcher)

	if err := agg.Update(inv); err != nil {
		t.Fatal(err)
	}
	if len(inv.Datasets["/d1"].Attr["locked_blocks"].(LockedBlocks)) == 0 {
		t.Fatalf("expected locks after first update")
	}

	emptyFetcher := &fakeFetcher{bodies: map[string][]byte{"http://a": []byte("[]")}}
	agg2 := NewAggregator([]*Source{{Name: "A", URL: "http://a", ContentType: ListOfDatasets}}, emptyFetcher)
	if err := agg2.Update(inv); err != nil {
		t.Fatal(err)
	}
	if len(inv.Datasets["/d1"].Attr["locked_blocks"].(LockedBlocks)) != 0 {
		t.Fatalf("expected locked_blocks cleared on second update with an empty source")
	}
}
