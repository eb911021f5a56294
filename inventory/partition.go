/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// Partition is a named predicate over BlockReplica. Policies run against
// one partition; the inventory maintains no
// persistent per-partition view of its own (the policy engine computes one
// on demand via partition_replicas), but partitions are registered here so
// policies can be looked up by name.
type Partition struct {
	Name      string
	Predicate func(*BlockReplica) bool
}

func NewPartition(name string, predicate func(*BlockReplica) bool) *Partition {
	return &Partition{Name: name, Predicate: predicate}
}

func (inv *Inventory) AddPartition(p *Partition) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.Partitions[p.Name] = p
}

func (inv *Inventory) Partition(name string) *Partition {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.Partitions[name]
}
