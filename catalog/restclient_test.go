/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package catalog

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yiiyama/ddm/inventory"
)

type nopStore struct{}

func (nopStore) SaveBlock(*inventory.Block) error                      { return nil }
func (nopStore) SaveDataset(*inventory.Dataset) error                  { return nil }
func (nopStore) SaveSite(*inventory.Site) error                        { return nil }
func (nopStore) SaveGroup(*inventory.Group) error                      { return nil }
func (nopStore) SaveBlockReplica(*inventory.BlockReplica) error        { return nil }
func (nopStore) SaveDatasetReplica(*inventory.DatasetReplica) error    { return nil }
func (nopStore) DeleteBlock(*inventory.Block) error                    { return nil }
func (nopStore) DeleteDataset(*inventory.Dataset) error                { return nil }
func (nopStore) DeleteSite(*inventory.Site) error                      { return nil }
func (nopStore) DeleteGroup(*inventory.Group) error                    { return nil }
func (nopStore) DeleteBlockReplica(*inventory.BlockReplica) error      { return nil }
func (nopStore) DeleteDatasetReplica(*inventory.DatasetReplica) error  { return nil }
func (nopStore) GetFiles(*inventory.Block) ([]*inventory.File, error)  { return nil, nil }
func (nopStore) ServerSide() bool                                      { return false }

func envelope(key, body string) string {
	return fmt.Sprintf(`{"phedex":{"request_timestamp":1,"instance":"prod","request_url":"x",`+
		`"request_version":"1","request_call":"x","call_time":0.1,"request_date":"x","%s":%s}}`, key, body)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope("node", `[{"name":"T1_US_FNAL","se":"cmssrm.fnal.gov","kind":"Tier1","technology":"Castor"}]`))
	})
	mux.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope("group", `[{"name":"AnalysisOps"}]`))
	})
	mux.HandleFunc("/blockreplicas", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope("dataset", `[{"name":"/a/b/c","block":[`+
			`{"name":"/a/b/c#001","replica":[{"group":"AnalysisOps","custodial":"y","time_create":"1000","time_update":"2000"}]},`+
			`{"name":"/a/b/c#002","replica":[{"group":"AnalysisOps","custodial":"n","time_create":"1500","time_update":"2500"}]}`+
			`]}]`))
	})

	return httptest.NewServer(mux)
}

func TestGetSiteList(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewRESTClient(srv.URL, "phedex")
	sites, err := c.GetSiteList(NewFilter("T1_*"))
	if err != nil {
		t.Fatalf("GetSiteList: %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "T1_US_FNAL" {
		t.Fatalf("unexpected site list: %+v", sites)
	}
	if sites[0].Host != "cmssrm.fnal.gov" || sites[0].StorageType != "Tier1" {
		t.Fatalf("unexpected site fields: %+v", sites[0])
	}
}

func TestGetGroupList(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewRESTClient(srv.URL, "phedex")
	groups, err := c.GetGroupList(nil)
	if err != nil {
		t.Fatalf("GetGroupList: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "AnalysisOps" {
		t.Fatalf("unexpected group list: %+v", groups)
	}
}

func TestGetDatasetsOnSiteAndMakeReplicaLinks(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewRESTClient(srv.URL, "phedex")

	inv := inventory.New(nopStore{}, 1000)
	site, _ := inv.EmbedSite(inventory.NewSite("T1_US_FNAL", "", "", ""))
	inv.EmbedGroup(inventory.NewGroup("AnalysisOps"))
	dataset, _ := inv.EmbedDataset(inventory.NewDataset("/a/b/c"))
	inv.EmbedBlock(inventory.NewBlock("001", &inventory.Dataset{Name: dataset.Name}, 10, 1, false, 0, 1))
	inv.EmbedBlock(inventory.NewBlock("002", &inventory.Dataset{Name: dataset.Name}, 10, 1, false, 0, 2))

	names, err := c.GetDatasetsOnSite(site, nil)
	if err != nil {
		t.Fatalf("GetDatasetsOnSite: %v", err)
	}
	if len(names) != 1 || names[0] != "/a/b/c" {
		t.Fatalf("unexpected dataset names: %+v", names)
	}

	if err := c.MakeReplicaLinks(inv, dataset); err != nil {
		t.Fatalf("MakeReplicaLinks: %v", err)
	}

	dr := site.FindDatasetReplica(dataset)
	if dr == nil {
		t.Fatalf("expected a dataset replica to be linked at %s", site.Name)
	}
	if len(dr.BlockReplicas) != 2 {
		t.Fatalf("expected 2 block replicas, got %d", len(dr.BlockReplicas))
	}
	if dr.IsPartial {
		t.Fatalf("expected a full dataset replica (both blocks present)")
	}
	if !dr.IsCustodial {
		t.Fatalf("expected the replica to be custodial (block 001 is custodial)")
	}

	for _, br := range dr.BlockReplicas {
		if br.Group == nil || br.Group.Name != "AnalysisOps" {
			t.Fatalf("expected group AnalysisOps on block replica, got %+v", br.Group)
		}
	}
}

func TestMakeRequestRejectsMissingEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"other":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewRESTClient(srv.URL, "phedex")
	if _, err := c.GetSiteList(nil); err == nil || !strings.Contains(err.Error(), "envelope") {
		t.Fatalf("expected an envelope-mismatch error, got %v", err)
	}
}
