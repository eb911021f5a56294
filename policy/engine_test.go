/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/yiiyama/ddm/inventory"
)

func TestPolicyPartitionRestore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Policy Partition/Restore Suite")
}

func buildTestInventory() (*inventory.Inventory, *inventory.Site) {
	inv := inventory.New(nopStore{}, 1000)
	site, _ := inv.EmbedSite(inventory.NewSite("T0", "", "", ""))
	group, _ := inv.EmbedGroup(inventory.NewGroup("production"))
	ds, _ := inv.EmbedDataset(inventory.NewDataset("/a/b/c"))

	for i, name := range []string{"blk1", "blk2"} {
		block, _, _ := inv.EmbedBlock(inventory.NewBlock(name, &inventory.Dataset{Name: ds.Name}, 100, 1, false, 0, uint64(i+1)))
		custodial := i == 0
		inv.EmbedBlockReplica(inventory.NewBlockReplica(block, site, group, custodial, 0, 0))
	}

	return inv, site
}

type nopStore struct{}

func (nopStore) ServerSide() bool                                        { return false }
func (nopStore) GetFiles(*inventory.Block) ([]*inventory.File, error)     { return nil, nil }
func (nopStore) SaveSite(*inventory.Site) error                          { return nil }
func (nopStore) SaveGroup(*inventory.Group) error                        { return nil }
func (nopStore) SaveDataset(*inventory.Dataset) error                    { return nil }
func (nopStore) SaveBlock(*inventory.Block) error                       { return nil }
func (nopStore) SaveBlockReplica(*inventory.BlockReplica) error         { return nil }
func (nopStore) SaveDatasetReplica(*inventory.DatasetReplica) error     { return nil }
func (nopStore) DeleteSite(*inventory.Site) error                       { return nil }
func (nopStore) DeleteGroup(*inventory.Group) error                     { return nil }
func (nopStore) DeleteDataset(*inventory.Dataset) error                 { return nil }
func (nopStore) DeleteBlock(*inventory.Block) error                    { return nil }
func (nopStore) DeleteBlockReplica(*inventory.BlockReplica) error      { return nil }
func (nopStore) DeleteDatasetReplica(*inventory.DatasetReplica) error  { return nil }

var _ = Describe("Policy partitioning", func() {
	It("restricts block replicas to the partition predicate and restores them intact", func() {
		inv, site := buildTestInventory()
		dataset := inv.Datasets["/a/b/c"]
		dr := dataset.Replicas[0]
		Expect(dr.BlockReplicas).To(HaveLen(2))

		custodialOnly := inventory.NewPartition("custodial", func(br *inventory.BlockReplica) bool {
			return br.IsCustodial
		})
		inv.AddPartition(custodialOnly)

		p := &Policy{Partition: custodialOnly, untracked: make(map[*inventory.DatasetReplica][]*inventory.BlockReplica)}
		targets := map[*inventory.Site]bool{site: true}

		inScope := p.PartitionReplicas(inv, targets)
		Expect(inScope).To(HaveKey(dr))
		Expect(dr.BlockReplicas).To(HaveLen(1))
		Expect(dr.BlockReplicas[0].IsCustodial).To(BeTrue())
		Expect(site.BlockReplicas).To(HaveLen(1))
		Expect(site.Occupancy).To(Equal(int64(100)))

		p.RestoreReplicas()

		Expect(dr.BlockReplicas).To(HaveLen(2))
		Expect(site.BlockReplicas).To(HaveLen(2))
		Expect(site.Occupancy).To(Equal(int64(200)))
	})

	It("drops a dataset replica entirely out of scope when no block matches, then restores it", func() {
		inv, site := buildTestInventory()
		dataset := inv.Datasets["/a/b/c"]
		dr := dataset.Replicas[0]

		nonCustodial := inventory.NewPartition("non_custodial", func(br *inventory.BlockReplica) bool {
			return !br.IsCustodial
		})
		// a predicate that matches no block replica, so the whole dataset replica falls out of scope
		allCustodial := inventory.NewPartition("impossible", func(br *inventory.BlockReplica) bool { return false })
		_ = nonCustodial
		inv.AddPartition(allCustodial)

		p := &Policy{Partition: allCustodial, untracked: make(map[*inventory.DatasetReplica][]*inventory.BlockReplica)}
		targets := map[*inventory.Site]bool{site: true}

		inScope := p.PartitionReplicas(inv, targets)
		Expect(inScope).NotTo(HaveKey(dr))
		Expect(dataset.Replicas).To(BeEmpty())
		Expect(site.FindDatasetReplica(dataset)).To(BeNil())

		p.RestoreReplicas()

		Expect(dataset.Replicas).To(HaveLen(1))
		Expect(dataset.Replicas[0]).To(Equal(dr))
		Expect(dr.BlockReplicas).To(HaveLen(2))
		Expect(site.FindDatasetReplica(dataset)).To(Equal(dr))
	})
})
