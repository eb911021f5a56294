// Package catalog implements a federation catalog adapter: a
// SiteInfoSource + ReplicaInfoSource client over a REST data service,
// populating the inventory graph from a remote authority rather than
// owning data itself.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package catalog

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/yiiyama/ddm/3rdparty/glog"
	"github.com/yiiyama/ddm/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelopeMetadataKeys are stripped from every response's envelope object
// before the single remaining result field is decoded.
var envelopeMetadataKeys = []string{
	"request_timestamp", "instance", "request_url",
	"request_version", "request_call", "call_time", "request_date",
}

// Filter is either a single glob pattern or a list of globs, passed
// through to the data service as repeated query parameters.
type Filter []string

func NewFilter(patterns ...string) Filter {
	return Filter(patterns)
}

func (f Filter) addTo(params url.Values, key string) {
	for _, pattern := range f {
		if pattern != "" {
			params.Add(key, pattern)
		}
	}
}

// epoch decodes a REST timestamp that may arrive as either a JSON number
// or a numeric string.
type epoch int64

func (e *epoch) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*e = epoch(int64(v))
	return nil
}

type protoBlockReplica struct {
	BlockName   string
	GroupName   string
	IsCustodial bool
	TimeCreated int64
	TimeUpdated int64
}

// RESTClient is a generic federation catalog client: one JSON GET per
// call, a single named envelope object wrapping every response, and a
// per-site cache of block-replica listings built up while walking sites,
// consumed later when linking a dataset's replicas.
type RESTClient struct {
	baseURL     string
	envelopeKey string // e.g. "phedex": the top-level object every response is wrapped in
	client      *http.Client

	mu            sync.Mutex
	blockReplicas map[*inventory.Site]map[string][]protoBlockReplica
}

func NewRESTClient(baseURL, envelopeKey string) *RESTClient {
	return &RESTClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		envelopeKey:   envelopeKey,
		client:        &http.Client{Timeout: 60 * time.Second},
		blockReplicas: make(map[*inventory.Site]map[string][]protoBlockReplica),
	}
}

// GetSiteList fetches the site registry, optionally narrowed by filter.
func (c *RESTClient) GetSiteList(filter Filter) ([]*inventory.Site, error) {
	params := url.Values{}
	filter.addTo(params, "node")

	var entries []struct {
		Name       string `json:"name"`
		SE         string `json:"se"`
		Kind       string `json:"kind"`
		Technology string `json:"technology"`
	}
	if err := c.makeRequest("nodes", params, &entries); err != nil {
		return nil, err
	}

	sites := make([]*inventory.Site, 0, len(entries))
	for _, e := range entries {
		sites = append(sites, inventory.NewSite(e.Name, e.SE, e.Kind, e.Technology))
	}
	return sites, nil
}

// GetGroupList fetches the group registry, optionally narrowed by filter.
func (c *RESTClient) GetGroupList(filter Filter) ([]*inventory.Group, error) {
	params := url.Values{}
	filter.addTo(params, "group")

	var entries []struct {
		Name string `json:"name"`
	}
	if err := c.makeRequest("groups", params, &entries); err != nil {
		return nil, err
	}

	groups := make([]*inventory.Group, 0, len(entries))
	for _, e := range entries {
		groups = append(groups, inventory.NewGroup(e.Name))
	}
	return groups, nil
}

// GetDatasetsOnSite lists the names of datasets with a block replica at
// site, optionally narrowed by filter. The full block-replica listing
// returned alongside the dataset names is cached for a later
// MakeReplicaLinks call, because the catalog only exposes that
// information per site rather than per dataset.
func (c *RESTClient) GetDatasetsOnSite(site *inventory.Site, filter Filter) ([]string, error) {
	params := url.Values{}
	params.Set("subscribed", "y")
	params.Set("show_dataset", "y")
	params.Set("node", site.Name)
	filter.addTo(params, "dataset")

	var entries []struct {
		Name  string `json:"name"`
		Block []struct {
			Name    string `json:"name"`
			Replica []struct {
				Group      *string `json:"group"`
				Custodial  string  `json:"custodial"`
				TimeCreate epoch   `json:"time_create"`
				TimeUpdate epoch   `json:"time_update"`
			} `json:"replica"`
		} `json:"block"`
	}
	if err := c.makeRequest("blockreplicas", params, &entries); err != nil {
		return nil, err
	}

	glog.FastV(4, glog.SmoduleCatalog).Infof("got %d dataset entries from site %s", len(entries), site.Name)

	bySite := make(map[string][]protoBlockReplica, len(entries))
	names := make([]string, 0, len(entries))

	for _, dsEntry := range entries {
		names = append(names, dsEntry.Name)

		protos := make([]protoBlockReplica, 0, len(dsEntry.Block))
		for _, blockEntry := range dsEntry.Block {
			if len(blockEntry.Replica) == 0 {
				continue
			}
			replica := blockEntry.Replica[0]

			groupName := ""
			if replica.Group != nil {
				groupName = *replica.Group
			}

			protos = append(protos, protoBlockReplica{
				BlockName:   strings.TrimPrefix(blockEntry.Name, dsEntry.Name+"#"),
				GroupName:   groupName,
				IsCustodial: replica.Custodial == "y",
				TimeCreated: int64(replica.TimeCreate),
				TimeUpdated: int64(replica.TimeUpdate),
			})
		}
		bySite[dsEntry.Name] = protos
	}

	c.mu.Lock()
	c.blockReplicas[site] = bySite
	c.mu.Unlock()

	return names, nil
}

// MakeReplicaLinks builds BlockReplica/DatasetReplica objects for dataset
// from the proto-replica cache populated by prior GetDatasetsOnSite
// calls, embedding each into inv. EmbedBlockReplica derives is_partial/
// is_custodial on the DatasetReplica as each block replica is added, so
// no separate bookkeeping pass is needed here.
func (c *RESTClient) MakeReplicaLinks(inv *inventory.Inventory, dataset *inventory.Dataset) error {
	c.mu.Lock()
	sites := make([]*inventory.Site, 0, len(c.blockReplicas))
	perSite := make(map[*inventory.Site][]protoBlockReplica, len(c.blockReplicas))
	for site, byDataset := range c.blockReplicas {
		protos, ok := byDataset[dataset.Name]
		if !ok {
			continue
		}
		sites = append(sites, site)
		perSite[site] = protos
	}
	c.mu.Unlock()

	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })

	glog.FastV(4, glog.SmoduleCatalog).Infof("making replica links for dataset %s", dataset.Name)

	for _, site := range sites {
		for _, proto := range perSite[site] {
			block := dataset.FindBlock(proto.BlockName)
			if block == nil {
				glog.FastV(4, glog.SmoduleCatalog).Infof("catalog found block %s unknown to dataset %s", proto.BlockName, dataset.Name)
				continue
			}

			var group *inventory.Group
			if proto.GroupName != "" {
				var ok bool
				group, ok = inv.Groups[proto.GroupName]
				if !ok {
					glog.FastV(4, glog.SmoduleCatalog).Infof("group %s for replica of block %s not registered", proto.GroupName, block.Name)
					continue
				}
			}

			inv.EmbedBlockReplica(inventory.NewBlockReplica(block, site, group, proto.IsCustodial, proto.TimeCreated, proto.TimeUpdated))
		}
	}

	return nil
}

// makeRequest performs a single REST GET, unwraps the named envelope
// object, strips its metadata fields, and decodes the one remaining
// result field into out.
func (c *RESTClient) makeRequest(resource string, params url.Values, out interface{}) error {
	u := c.baseURL + "/" + resource
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	resp, err := c.client.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	glog.FastV(4, glog.SmoduleCatalog).Infof("catalog returned %d bytes for %s", len(body), resource)

	var envelope map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}

	inner, ok := envelope[c.envelopeKey]
	if !ok {
		return fmt.Errorf("%s response missing %q envelope", resource, c.envelopeKey)
	}

	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(inner, &fields); err != nil {
		return err
	}
	for _, key := range envelopeMetadataKeys {
		delete(fields, key)
	}

	if len(fields) != 1 {
		return fmt.Errorf("expected exactly one result field in %s response, got %d", resource, len(fields))
	}
	for _, raw := range fields {
		return json.Unmarshal(raw, out)
	}
	return nil
}
