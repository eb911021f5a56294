// Package policy implements a declarative rule stack that partitions
// dataset replicas across sites and emits
// Keep/Protect/Dismiss/Delete/ProtectBlock/DeleteBlock decisions.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package policy

import (
	"time"

	"github.com/yiiyama/ddm/inventory"
	"github.com/yiiyama/ddm/lock"
)

// VarType is the type tag carried by every condition variable: NUMERIC,
// TIME, TEXT, or BOOL.
type VarType int

const (
	NumericType VarType = iota
	TimeType
	TextType
	BoolType
)

// EvalContext is the evaluation-time snapshot a condition is checked
// against: the wall-clock "now" used by dynamic variables like
// replica_age, and the demand-plugin values accumulated for this run.
type EvalContext struct {
	Now    time.Time
	Demand DemandSource
}

// DemandSource supplies values for variables that declare a demand
// plugin, e.g. popularity or externally sourced locks. The plugins
// themselves are out of scope; callers provide their own implementation.
type DemandSource interface {
	// Value looks up a named demand value for a dataset replica. ok is
	// false if the plugin has no opinion on this replica.
	Value(plugin, name string, dr *inventory.DatasetReplica) (float64, bool)
}

// NopDemandSource is a DemandSource that never has data, usable when no
// demand plugins are configured.
type NopDemandSource struct{}

func (NopDemandSource) Value(string, string, *inventory.DatasetReplica) (float64, bool) { return 0, false }

// ReplicaVarDef is a variable usable in a replica-scoped condition
// (policy rule lines). Extract is evaluated once per BlockReplica so that
// block-level rules can select a subset of a DatasetReplica's block
// replicas.
type ReplicaVarDef struct {
	Type   VarType
	Static bool
	Plugin string // demand plugin this variable requires, "" if none
	// Extract returns the value for term comparison. When the variable is
	// dataset/site-scoped (e.g. dataset_name), the value is the same for
	// every block replica of a given DatasetReplica.
	Extract func(ctx *EvalContext, dr *inventory.DatasetReplica, br *inventory.BlockReplica) interface{}
}

var ReplicaVarDefs = map[string]*ReplicaVarDef{
	"dataset_name": {
		Type: TextType, Static: true,
		Extract: func(_ *EvalContext, dr *inventory.DatasetReplica, _ *inventory.BlockReplica) interface{} {
			return dr.Dataset.Name
		},
	},
	"site_name": {
		Type: TextType, Static: true,
		Extract: func(_ *EvalContext, dr *inventory.DatasetReplica, _ *inventory.BlockReplica) interface{} {
			return dr.Site.Name
		},
	},
	"replica_size": {
		Type: NumericType, Static: true,
		Extract: func(_ *EvalContext, _ *inventory.DatasetReplica, br *inventory.BlockReplica) interface{} {
			if br.Block == nil {
				return float64(0)
			}
			return float64(br.Block.Size)
		},
	},
	"replica_age": {
		// Dynamic: depends on wall-clock time, recomputed every evaluation.
		Type: NumericType, Static: false,
		Extract: func(ctx *EvalContext, _ *inventory.DatasetReplica, br *inventory.BlockReplica) interface{} {
			ageSeconds := ctx.Now.Sub(time.Unix(br.TimeCreated, 0)).Seconds()
			return ageSeconds / 86400.0
		},
	},
	"is_custodial": {
		Type: BoolType, Static: true,
		Extract: func(_ *EvalContext, _ *inventory.DatasetReplica, br *inventory.BlockReplica) interface{} {
			return br.IsCustodial
		},
	},
	"is_partial": {
		Type: BoolType, Static: false, // depends on the partition's remaining block replicas
		Extract: func(_ *EvalContext, dr *inventory.DatasetReplica, _ *inventory.BlockReplica) interface{} {
			return dr.IsPartial
		},
	},
	"popularity": {
		Type: NumericType, Static: false, Plugin: "popularity",
		Extract: func(ctx *EvalContext, dr *inventory.DatasetReplica, _ *inventory.BlockReplica) interface{} {
			v, _ := ctx.Demand.Value("popularity", "popularity", dr)
			return v
		},
	},
	"locked": {
		// Set by the lock-source aggregator; dynamic because locks
		// can change between policy runs.
		Type: BoolType, Static: false, Plugin: "locks",
		Extract: func(_ *EvalContext, dr *inventory.DatasetReplica, br *inventory.BlockReplica) interface{} {
			locked, ok := dr.Dataset.Attr["locked_blocks"].(lock.LockedBlocks)
			if !ok {
				return false
			}
			return locked.IsLocked(dr.Site, br.Block)
		},
	},
}

// SiteVarDef is a variable usable in a site-scoped condition (On/When/
// Until lines).
type SiteVarDef struct {
	Type    VarType
	Static  bool
	Plugin  string
	Extract func(ctx *EvalContext, site *inventory.Site) interface{}
}

var SiteVarDefs = map[string]*SiteVarDef{
	"site_name": {
		Type: TextType, Static: true,
		Extract: func(_ *EvalContext, site *inventory.Site) interface{} { return site.Name },
	},
	"site_occupancy": {
		// Dynamic: occupancy changes as the engine commits deletions
		// within a single policy run.
		Type: NumericType, Static: false,
		Extract: func(_ *EvalContext, site *inventory.Site) interface{} {
			return float64(site.Occupancy)
		},
	},
}

// RequiredReplicaPlugins maps a demand plugin name to the set of variable
// names that require it.
var RequiredReplicaPlugins = buildRequiredPlugins()

func buildRequiredPlugins() map[string][]string {
	out := make(map[string][]string)
	for name, def := range ReplicaVarDefs {
		if def.Plugin == "" {
			continue
		}
		out[def.Plugin] = append(out[def.Plugin], name)
	}
	return out
}
