/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package lock

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/yiiyama/ddm/3rdparty/glog"
	"github.com/yiiyama/ddm/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ContentType is the shape of a single source's payload.
type ContentType int

const (
	ListOfDatasets ContentType = iota
	CMSWebListOfDatasets
	SiteToDatasets
)

// Source describes one named lock source.
type Source struct {
	Name        string
	URL         string
	ContentType ContentType
	SitePattern string // glob, "" meaning "all sites"
	LockURL     string // if set, poll until 404 before fetching URL
}

// Fetcher retrieves a source's JSON payload. The real implementation is an
// HTTP GET (see httpFetcher below); tests supply a stub.
type Fetcher interface {
	Fetch(url string) ([]byte, error)
	// Head404 polls url and reports whether the last response was 404.
	Head404(url string) (bool, error)
}

type httpFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() Fetcher {
	return &httpFetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *httpFetcher) Fetch(url string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (f *httpFetcher) Head404(url string) (bool, error) {
	resp, err := f.client.Head(url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusNotFound, nil
}

// Aggregator merges several sources' lock lists into locked_blocks
// attributes on datasets, applying a dataset-level-wins, sticky
// precedence: once a site is locked at the whole-dataset level, a later
// block-level entry for the same site cannot downgrade it.
type Aggregator struct {
	sources []*Source
	fetcher Fetcher
	// busyWait is the poll interval while a lock_url is still being
	// produced. Overridable by tests so they don't actually sleep a minute.
	busyWait time.Duration
}

func NewAggregator(sources []*Source, fetcher Fetcher) *Aggregator {
	return &Aggregator{sources: sources, fetcher: fetcher, busyWait: 60 * time.Second}
}

// Update clears locked_blocks on every dataset, then merges every source
// in deterministic (sorted-name) order.
func (a *Aggregator) Update(inv *inventory.Inventory) error {
	for _, dataset := range inv.Datasets {
		dataset.Attr[lockedBlocksAttr] = make(LockedBlocks)
	}

	sorted := append([]*Source(nil), a.sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, src := range sorted {
		if err := a.applySource(inv, src); err != nil {
			return fmt.Errorf("lock source %s: %w", src.Name, err)
		}
	}
	return nil
}

func (a *Aggregator) applySource(inv *inventory.Inventory, src *Source) error {
	if src.LockURL != "" {
		for {
			is404, err := a.fetcher.Head404(src.LockURL)
			if err != nil {
				return err
			}
			if is404 {
				break
			}
			glog.FastV(4, glog.SmoduleLock).Infof("lock file %s still being produced, waiting %s", src.LockURL, a.busyWait)
			time.Sleep(a.busyWait)
		}
	}

	glog.FastV(4, glog.SmoduleLock).Infof("retrieving lock information from %s", src.URL)

	body, err := a.fetcher.Fetch(src.URL)
	if err != nil {
		return err
	}

	switch src.ContentType {
	case ListOfDatasets:
		var names []string
		if err := json.Unmarshal(body, &names); err != nil {
			return err
		}
		a.applyListOfDatasets(inv, src, names)

	case CMSWebListOfDatasets:
		var env struct {
			Result []string `json:"result"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return err
		}
		a.applyListOfDatasets(inv, src, env.Result)

	case SiteToDatasets:
		var data map[string]map[string]struct {
			Lock bool `json:"lock"`
		}
		if err := json.Unmarshal(body, &data); err != nil {
			return err
		}
		a.applySiteToDatasets(inv, data)
	}

	return nil
}

func (a *Aggregator) applyListOfDatasets(inv *inventory.Inventory, src *Source, names []string) {
	var siteRe func(string) bool
	if src.SitePattern != "" {
		siteRe = globMatcher(src.SitePattern)
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		dataset, ok := inv.Datasets[name]
		if !ok {
			glog.FastV(4, glog.SmoduleLock).Infof("unknown dataset %s from %s", name, src.Name)
			continue
		}

		locked := lockedBlocksOf(dataset)

		for _, dr := range dataset.Replicas {
			if siteRe != nil && !siteRe(dr.Site.Name) {
				continue
			}
			setDatasetLevelLock(locked, dr.Site)
		}
	}
}

func (a *Aggregator) applySiteToDatasets(inv *inventory.Inventory, data map[string]map[string]struct {
	Lock bool `json:"lock"`
}) {
	siteNames := make([]string, 0, len(data))
	for name := range data {
		siteNames = append(siteNames, name)
	}
	sort.Strings(siteNames)

	for _, siteName := range siteNames {
		site, ok := inv.Sites[siteName]
		if !ok {
			glog.FastV(4, glog.SmoduleLock).Infof("unknown site %s", siteName)
			continue
		}

		objects := data[siteName]
		objectNames := make([]string, 0, len(objects))
		for name := range objects {
			objectNames = append(objectNames, name)
		}
		sort.Strings(objectNames)

		for _, objectName := range objectNames {
			info := objects[objectName]
			if !info.Lock {
				continue
			}

			datasetName, blockName := splitFullName(objectName)

			dataset, ok := inv.Datasets[datasetName]
			if !ok {
				glog.FastV(4, glog.SmoduleLock).Infof("unknown dataset %s at %s", datasetName, siteName)
				continue
			}

			dr := dataset.FindReplica(site)
			if dr == nil {
				glog.FastV(4, glog.SmoduleLock).Infof("replica of %s not at %s", datasetName, siteName)
				continue
			}

			locked := lockedBlocksOf(dataset)

			if blockName == "" {
				setDatasetLevelLock(locked, site)
				continue
			}

			block := dataset.FindBlock(blockName)
			if block == nil {
				glog.FastV(4, glog.SmoduleLock).Infof("unknown block %s in %s", objectName, siteName)
				continue
			}

			addBlockLevelLock(locked, site, block)
		}
	}
}

func lockedBlocksOf(dataset *inventory.Dataset) LockedBlocks {
	lb, ok := dataset.Attr[lockedBlocksAttr].(LockedBlocks)
	if !ok {
		lb = make(LockedBlocks)
		dataset.Attr[lockedBlocksAttr] = lb
	}
	return lb
}

// setDatasetLevelLock is sticky: once a site is locked at dataset level,
// a later block-level entry for the same site cannot downgrade it.
func setDatasetLevelLock(locked LockedBlocks, site *inventory.Site) {
	locked[site] = &SiteLock{WholeDataset: true}
}

// addBlockLevelLock adds a block to the per-site lock set unless the site
// is already locked at dataset level, in which case it is a no-op.
func addBlockLevelLock(locked LockedBlocks, site *inventory.Site, block *inventory.Block) {
	sl, ok := locked[site]
	if !ok {
		sl = &SiteLock{Blocks: make(map[*inventory.Block]bool)}
		locked[site] = sl
	}
	if sl.WholeDataset {
		return
	}
	if sl.Blocks == nil {
		sl.Blocks = make(map[*inventory.Block]bool)
	}
	sl.Blocks[block] = true
}

func splitFullName(objectName string) (datasetName, blockName string) {
	datasetName, blockName, _ = strings.Cut(objectName, "#")
	return datasetName, blockName
}

// globMatcher compiles a shell glob (fnmatch-style) into a match function,
// using path.Match, which implements the same "*"/"?"/"[...]" semantics as
// Python's fnmatch.translate for the patterns this system uses.
func globMatcher(pattern string) func(string) bool {
	return func(s string) bool {
		ok, err := path.Match(pattern, s)
		return err == nil && ok
	}
}
