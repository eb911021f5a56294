/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package inventory

import (
	"fmt"
	"os"

	"github.com/sdomino/scribble"
)

// ScribbleStore is a concrete Store backed by scribble, a JSON-flat-file
// "DB" (github.com/sdomino/scribble), standing in for the persistent
// store collaborator.
type ScribbleStore struct {
	driver     *scribble.Driver
	serverSide bool
}

const (
	collSites           = "sites"
	collGroups          = "groups"
	collDatasets        = "datasets"
	collBlocks          = "blocks"
	collFiles           = "files"
	collBlockReplicas   = "block_replicas"
	collDatasetReplicas = "dataset_replicas"
)

func NewScribbleStore(dir string, serverSide bool) (*ScribbleStore, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &ScribbleStore{driver: driver, serverSide: serverSide}, nil
}

func (s *ScribbleStore) ServerSide() bool { return s.serverSide }

type fileRecord struct {
	LFN  string `json:"lfn"`
	Size int64  `json:"size"`
}

func (s *ScribbleStore) GetFiles(block *Block) ([]*File, error) {
	var records []fileRecord
	if err := s.driver.Read(collFiles, blockResourceKey(block), &records); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]*File, 0, len(records))
	for _, r := range records {
		files = append(files, NewFile(r.LFN, r.Size))
	}
	return files, nil
}

func blockResourceKey(b *Block) string {
	return fmt.Sprintf("%s#%s", b.dataSetName(), b.Name)
}

type siteRecord struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	StorageType string `json:"storage_type"`
	Backend     string `json:"backend"`
}

func (s *ScribbleStore) SaveSite(site *Site) error {
	return s.driver.Write(collSites, site.Name, siteRecord{site.Name, site.Host, site.StorageType, site.Backend})
}

func (s *ScribbleStore) DeleteSite(site *Site) error {
	return s.driver.Delete(collSites, site.Name)
}

type groupRecord struct {
	Name string `json:"name"`
}

func (s *ScribbleStore) SaveGroup(g *Group) error {
	return s.driver.Write(collGroups, g.Name, groupRecord{g.Name})
}

func (s *ScribbleStore) DeleteGroup(g *Group) error {
	return s.driver.Delete(collGroups, g.Name)
}

type datasetRecord struct {
	Name string                 `json:"name"`
	Attr map[string]interface{} `json:"attr"`
}

func (s *ScribbleStore) SaveDataset(d *Dataset) error {
	return s.driver.Write(collDatasets, d.Name, datasetRecord{d.Name, d.Attr})
}

func (s *ScribbleStore) DeleteDataset(d *Dataset) error {
	return s.driver.Delete(collDatasets, d.Name)
}

type blockRecord struct {
	Name       string `json:"name"`
	Dataset    string `json:"dataset"`
	Size       int64  `json:"size"`
	NumFiles   int    `json:"num_files"`
	IsOpen     bool   `json:"is_open"`
	LastUpdate int64  `json:"last_update"`
	ID         uint64 `json:"id"`
}

func (s *ScribbleStore) SaveBlock(b *Block) error {
	return s.driver.Write(collBlocks, blockResourceKey(b), blockRecord{
		Name: b.Name, Dataset: b.dataSetName(), Size: b.Size,
		NumFiles: b.NumFiles, IsOpen: b.IsOpen, LastUpdate: b.LastUpdate, ID: b.ID,
	})
}

func (s *ScribbleStore) DeleteBlock(b *Block) error {
	return s.driver.Delete(collBlocks, blockResourceKey(b))
}

type blockReplicaRecord struct {
	Block       string `json:"block"`
	Site        string `json:"site"`
	Group       string `json:"group"`
	IsCustodial bool   `json:"is_custodial"`
	TimeCreated int64  `json:"time_created"`
	TimeUpdated int64  `json:"time_updated"`
}

func blockReplicaResourceKey(r *BlockReplica) string {
	return fmt.Sprintf("%s@%s", blockResourceKey(r.Block), r.Site.Name)
}

func (s *ScribbleStore) SaveBlockReplica(r *BlockReplica) error {
	groupName := ""
	if r.Group != nil {
		groupName = r.Group.Name
	}
	return s.driver.Write(collBlockReplicas, blockReplicaResourceKey(r), blockReplicaRecord{
		Block: blockResourceKey(r.Block), Site: r.Site.Name, Group: groupName,
		IsCustodial: r.IsCustodial, TimeCreated: r.TimeCreated, TimeUpdated: r.TimeUpdated,
	})
}

func (s *ScribbleStore) DeleteBlockReplica(r *BlockReplica) error {
	return s.driver.Delete(collBlockReplicas, blockReplicaResourceKey(r))
}

type datasetReplicaRecord struct {
	Dataset     string `json:"dataset"`
	Site        string `json:"site"`
	IsPartial   bool   `json:"is_partial"`
	IsCustodial bool   `json:"is_custodial"`
}

func datasetReplicaResourceKey(dr *DatasetReplica) string {
	return fmt.Sprintf("%s@%s", dr.Dataset.Name, dr.Site.Name)
}

func (s *ScribbleStore) SaveDatasetReplica(dr *DatasetReplica) error {
	return s.driver.Write(collDatasetReplicas, datasetReplicaResourceKey(dr), datasetReplicaRecord{
		Dataset: dr.Dataset.Name, Site: dr.Site.Name, IsPartial: dr.IsPartial, IsCustodial: dr.IsCustodial,
	})
}

func (s *ScribbleStore) DeleteDatasetReplica(dr *DatasetReplica) error {
	return s.driver.Delete(collDatasetReplicas, datasetReplicaResourceKey(dr))
}
