// Package inventory implements the in-memory data model: entities with
// cross-references, lazy file-set loading with a bounded cache, and the
// embed/unlink discipline that keeps the graph consistent with an
// external store.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

// File is the smallest unit of the model: owned by exactly one Block,
// identified by its logical file name (LFN).
type File struct {
	LFN  string
	Size int64
}

func NewFile(lfn string, size int64) *File {
	return &File{LFN: lfn, Size: size}
}

func (f *File) Equal(other *File) bool {
	return f.LFN == other.LFN && f.Size == other.Size
}
