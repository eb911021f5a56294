/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// Group is the owner of a BlockReplica, identified by name.
type Group struct {
	Name string
}

func NewGroup(name string) *Group {
	return &Group{Name: name}
}

func (g *Group) Equal(other *Group) bool {
	return g.Name == other.Name
}

// EmbedGroup embeds a detached Group into the inventory's group registry.
// Returns the resident Group and whether the registry was changed.
func (inv *Inventory) EmbedGroup(detached *Group) (*Group, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if existing, ok := inv.Groups[detached.Name]; ok {
		return existing, false
	}

	g := &Group{Name: detached.Name}
	inv.Groups[g.Name] = g
	return g, true
}
