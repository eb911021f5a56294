// dynamod is the federation daemon: it wires together the inventory,
// update board, lock-source aggregator, policy engine and application
// server into one long-running process, mirroring aisnode.go's
// "read config, build the pieces, run" shape.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/yiiyama/ddm/3rdparty/glog"
	"github.com/yiiyama/ddm/appserver"
	"github.com/yiiyama/ddm/board"
	"github.com/yiiyama/ddm/catalog"
	"github.com/yiiyama/ddm/cmn"
	"github.com/yiiyama/ddm/inventory"
	"github.com/yiiyama/ddm/lock"
	"github.com/yiiyama/ddm/policy"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	configFile := flag.String("config", "", "path to the daemon's JSON config file")
	verbosity := flag.Int("v", 0, "glog verbosity threshold")
	catalogURL := flag.String("catalog_url", "", "base URL of the REST federation catalog")
	catalogEnvelope := flag.String("catalog_envelope", "phedex", "top-level envelope key of catalog responses")
	interpreter := flag.String("interpreter", "/usr/bin/python3", "interpreter used for submitted/interactive applications")
	cycleInterval := flag.Duration("cycle_interval", 5*time.Minute, "time between policy-engine cycles")
	flag.Parse()

	glog.SetV(*verbosity)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		glog.Fatalf("loading config: %v", err)
	}
	cmn.GCO.Put(cfg)

	store, err := inventory.NewScribbleStore(cfg.Confdir, true /* serverSide */)
	if err != nil {
		glog.Fatalf("opening inventory store: %v", err)
	}
	inv := inventory.New(store, cfg.FileCacheDepth)

	updateBoard, err := board.NewScribbleBoard(cfg.Confdir)
	if err != nil {
		glog.Fatalf("opening update board: %v", err)
	}
	defer updateBoard.Disconnect()

	aggregator := lock.NewAggregator(buildLockSources(cfg.LockSources), lock.NewHTTPFetcher())

	pol, err := loadPolicy(cfg.PolicyFile)
	if err != nil {
		glog.Fatalf("loading policy: %v", err)
	}

	var restClient *catalog.RESTClient
	if *catalogURL != "" {
		restClient = catalog.NewRESTClient(*catalogURL, *catalogEnvelope)
	}

	master := appserver.NewInMemoryMaster(*interpreter)
	workAreaRoot := filepath.Join(cfg.Confdir, "work")
	if err := os.MkdirAll(workAreaRoot, 0755); err != nil {
		glog.Fatalf("creating work area root: %v", err)
	}
	srv := appserver.NewServer(cfg.AppServer, workAreaRoot, *interpreter, master)
	if err := srv.Start(); err != nil {
		glog.Fatalf("starting application server: %v", err)
	}
	glog.Infof("application server listening on port %d", cfg.AppServer.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*cycleInterval)
	defer ticker.Stop()

	runCycle(inv, restClient, aggregator, pol, updateBoard)

	for {
		select {
		case <-ticker.C:
			runCycle(inv, restClient, aggregator, pol, updateBoard)
		case sig := <-sigCh:
			glog.Infof("received %v, shutting down", sig)
			srv.Stop()
			return
		}
	}
}

func loadConfig(path string) (*cmn.Config, error) {
	cfg := &cmn.Config{Confdir: "/var/lib/dynamo", FileCacheDepth: 100}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return nil, cmn.NewConfigurationError("no policy_file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")

	all := inventory.NewPartition("all", func(*inventory.BlockReplica) bool { return true })
	return policy.ParseLines(all, lines)
}

func buildLockSources(cfgs []cmn.LockSourceConfig) []*lock.Source {
	sources := make([]*lock.Source, 0, len(cfgs))
	for _, c := range cfgs {
		var contentType lock.ContentType
		switch c.ContentType {
		case "cmsweb_list_of_datasets":
			contentType = lock.CMSWebListOfDatasets
		case "site_to_datasets":
			contentType = lock.SiteToDatasets
		default:
			contentType = lock.ListOfDatasets
		}
		sources = append(sources, &lock.Source{
			Name:        c.Name,
			URL:         c.URL,
			ContentType: contentType,
			SitePattern: c.Sites,
			LockURL:     c.LockURL,
		})
	}
	return sources
}

// runCycle refreshes inventory from the federation catalog, re-aggregates
// locks, then drives the policy engine's partition/evaluate/commit/restore
// loop to its stop condition at every target site, journaling each
// committed deletion to the update board.
func runCycle(inv *inventory.Inventory, restClient *catalog.RESTClient, aggregator *lock.Aggregator, pol *policy.Policy, updateBoard board.Board) {
	if restClient != nil {
		refreshFromCatalog(inv, restClient)
	}

	if err := aggregator.Update(inv); err != nil {
		glog.Warningf("lock aggregation failed: %v", err)
	}

	ctx := &policy.EvalContext{Now: time.Now(), Demand: policy.NopDemandSource{}}

	targets := make(map[*inventory.Site]bool)
	for _, site := range inv.Sites {
		ok, err := pol.TargetSiteDef.Match(ctx, site)
		if err != nil {
			glog.Warningf("evaluating target-site condition for %s: %v", site.Name, err)
			continue
		}
		if ok {
			targets[site] = true
		}
	}

	for site := range targets {
		runSiteCycle(inv, pol, ctx, site, updateBoard)
	}
}

func runSiteCycle(inv *inventory.Inventory, pol *policy.Policy, ctx *policy.EvalContext, site *inventory.Site, updateBoard board.Board) {
	triggered, err := pol.DeletionTrigger.Match(ctx, site)
	if err != nil {
		glog.Warningf("evaluating deletion trigger for %s: %v", site.Name, err)
		return
	}
	if !triggered {
		return
	}

	siteTargets := map[*inventory.Site]bool{site: true}

	for {
		inScope := pol.PartitionReplicas(inv, siteTargets)

		var candidates []*inventory.DatasetReplica
		decisions := make(map[*inventory.DatasetReplica]*policy.Decision)
		for dr := range inScope {
			decision, err := pol.Evaluate(ctx, dr)
			if err != nil {
				glog.Warningf("evaluating policy for %s at %s: %v", dr.Dataset.Name, site.Name, err)
				continue
			}
			if decision.Verb == policy.Delete || decision.Verb == policy.DeleteBlock {
				candidates = append(candidates, dr)
				decisions[dr] = decision
			}
		}

		if len(candidates) == 0 {
			pol.RestoreReplicas()
			return
		}

		sorted := pol.SortedReplicas(ctx, candidates)
		commitDecision(inv, decisions[sorted[0]], updateBoard)

		pol.RestoreReplicas()

		stop, err := pol.StopCondition.Match(ctx, site)
		if err != nil {
			glog.Warningf("evaluating stop condition for %s: %v", site.Name, err)
			return
		}
		if stop {
			return
		}
		if !pol.NeedIteration {
			return
		}
	}
}

// commitDecision applies a Delete/DeleteBlock decision to the inventory
// and journals it on the update board, matching C4's "reader locks,
// drains, applies, flushes" consumer contract from the writer's side.
func commitDecision(inv *inventory.Inventory, decision *policy.Decision, updateBoard board.Board) {
	if decision.Verb == policy.DeleteBlock {
		for _, br := range decision.BlockReplicas {
			inv.UnlinkBlockReplica(br)
		}
	} else {
		inv.UnlinkDatasetReplica(decision.Replica)
	}

	record := map[string]interface{}{
		"dataset": decision.Replica.Dataset.Name,
		"site":    decision.Replica.Site.Name,
		"verb":    decision.Verb.String(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		glog.Warningf("marshaling deletion record: %v", err)
		return
	}

	if err := updateBoard.Lock(); err != nil {
		glog.Warningf("locking update board: %v", err)
		return
	}
	defer updateBoard.Unlock()

	if err := updateBoard.WriteUpdates([]board.Command{{Op: board.OpDelete, Object: string(payload)}}); err != nil {
		glog.Warningf("journaling deletion: %v", err)
	}
}

func refreshFromCatalog(inv *inventory.Inventory, restClient *catalog.RESTClient) {
	sites, err := restClient.GetSiteList(nil)
	if err != nil {
		glog.Warningf("fetching site list: %v", err)
		return
	}
	for _, site := range sites {
		inv.EmbedSite(site)
	}

	groups, err := restClient.GetGroupList(nil)
	if err != nil {
		glog.Warningf("fetching group list: %v", err)
		return
	}
	for _, group := range groups {
		inv.EmbedGroup(group)
	}

	for _, site := range inv.Sites {
		names, err := restClient.GetDatasetsOnSite(site, nil)
		if err != nil {
			glog.Warningf("fetching datasets on site %s: %v", site.Name, err)
			continue
		}
		for _, name := range names {
			dataset, _ := inv.EmbedDataset(inventory.NewDataset(name))
			if err := restClient.MakeReplicaLinks(inv, dataset); err != nil {
				glog.Warningf("linking replicas for dataset %s: %v", name, err)
			}
		}
	}
}
