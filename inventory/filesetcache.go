/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import (
	"container/list"
	"sync"
)

// FileSetCache is a bounded FIFO cache: a mapping from Block identity to
// its materialized file set, evicted oldest-first once it exceeds
// MaxDepth.
//
// Go has no weak references, so a block's "weak" state is modeled purely
// as a Block.state value: a block whose file set is reachable only through
// this cache is "weak", and the cache's own FIFO eviction is what makes
// that reachability expire.
type FileSetCache struct {
	mu       sync.Mutex
	maxDepth int
	order    *list.List               // of *Block, oldest at Front
	elems    map[*Block]*list.Element // *Block -> its node in order
	data     map[*Block]map[string]*File
}

func NewFileSetCache(maxDepth int) *FileSetCache {
	if maxDepth <= 0 {
		maxDepth = 1000
	}
	return &FileSetCache{
		maxDepth: maxDepth,
		order:    list.New(),
		elems:    make(map[*Block]*list.Element),
		data:     make(map[*Block]map[string]*File),
	}
}

// Get returns the cached file set for block, if still resident.
func (c *FileSetCache) Get(block *Block) (map[string]*File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	files, ok := c.data[block]
	return files, ok
}

// Put inserts or refreshes block's file set, evicting the oldest entries
// (FIFO, not LRU: a Get does not move the entry to the back) until the
// cache is back under MaxDepth.
func (c *FileSetCache) Put(block *Block, files map[string]*File) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elems[block]; ok {
		c.order.Remove(elem)
		delete(c.elems, block)
	}

	for len(c.data) >= c.maxDepth {
		front := c.order.Front()
		if front == nil {
			break
		}
		evicted := front.Value.(*Block)
		c.order.Remove(front)
		delete(c.elems, evicted)
		delete(c.data, evicted)
	}

	elem := c.order.PushBack(block)
	c.elems[block] = elem
	c.data[block] = files
}

// Evict removes block's entry unconditionally, e.g. when a mutation
// detaches the file set from the cache or the block is unlinked.
func (c *FileSetCache) Evict(block *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elems[block]; ok {
		c.order.Remove(elem)
		delete(c.elems, block)
	}
	delete(c.data, block)
}

func (c *FileSetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *FileSetCache) Contains(block *Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[block]
	return ok
}
