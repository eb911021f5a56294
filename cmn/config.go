/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package cmn

import "sync/atomic"

// Config is the in-memory shape of the daemon's configuration. Callers
// construct one (from disk/CLI flags, however they choose) and hand it
// to GCO.Put.
type Config struct {
	// Confdir is the base directory for scribble-backed stores (inventory,
	// update board) and generated work areas.
	Confdir string

	// PolicyFile is the path to the textual policy stack (see policy.ParseLines).
	PolicyFile string

	// FileCacheDepth bounds the FileSet FIFO cache.
	FileCacheDepth int

	// AppServer carries the mutual-TLS listener configuration.
	AppServer AppServerConfig

	// LockSources enumerates the named web lock-sources.
	LockSources []LockSourceConfig
}

type AppServerConfig struct {
	Port     int
	CertFile string
	KeyFile  string
	CAFile   string
	CAPath   string
	// AllowProxyCerts enables acceptance of RFC 3820 proxy certificates.
	AllowProxyCerts bool
}

type LockSourceConfig struct {
	Name        string
	URL         string
	DataType    string
	ContentType string
	Sites       string
	LockURL     string
}

// globalConfigOwner holds the single process-wide Config, reached via
// cmn.GCO.Get() rather than threading a Config through every call.
// Replacing the pointer is atomic so readers never see a partially
// constructed Config.
type globalConfigOwner struct {
	v atomic.Value
}

func (g *globalConfigOwner) Get() *Config {
	v := g.v.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

func (g *globalConfigOwner) Put(c *Config) {
	g.v.Store(c)
}

// GCO is the global config owner, set once at process start.
var GCO = &globalConfigOwner{}
