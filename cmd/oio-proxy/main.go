// Package main is the gateway daemon executable: it wires conscience,
// resolver, meta2 and the upload engine together behind one
// fasthttp-fronted REST surface.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GuillaumeDelaporte/oio-sds/cmn"
	"github.com/GuillaumeDelaporte/oio-sds/conscience"
	"github.com/GuillaumeDelaporte/oio-sds/gateway"
	"github.com/GuillaumeDelaporte/oio-sds/layout"
	"github.com/GuillaumeDelaporte/oio-sds/meta2"
	"github.com/GuillaumeDelaporte/oio-sds/resolver"
	"github.com/GuillaumeDelaporte/oio-sds/stats"
	"github.com/GuillaumeDelaporte/oio-sds/upload"
)

var (
	configPath = flag.String("config", "", "path to config JSON (defaults built in if empty)")
	policies   = flag.String("policies", "NONE:NONE;TWOCOPIES:DUPLI:nb_copy=2,distance=1;EC21:RAIN:k=2,m=1,distance=2",
		"';'-separated list of storage policy specs, each \"name:type:k=v,...\"")
)

// NOTE: set by ldflags.
var (
	version string
	build   string
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		glog.Errorf("oio-proxy: loading config: %v", err)
		return 1
	}

	parsedPolicies, err := parsePolicies(*policies)
	if err != nil {
		glog.Errorf("oio-proxy: %v", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	st := stats.NewRegistry(reg)

	consc := conscience.New(st, cfg.Conscience.ScoreExpirationDefault)
	if err := consc.DeclareType(conscience.TypeConfig{
		Type:                "rawx",
		ScoreExpr:           "cpu:1,space:1",
		ScoreExpiration:     cfg.Conscience.ScoreExpirationDefault,
		ScoreVariationBound: cfg.Conscience.ScoreVariationBound,
		AlertFrequencyLimit: cfg.Conscience.AlertFrequencyLimit,
	}); err != nil {
		glog.Errorf("oio-proxy: declaring rawx service type: %v", err)
		return 1
	}
	if err := consc.DeclareType(conscience.TypeConfig{
		Type:                "meta2",
		ScoreExpr:           "cpu:1,space:1",
		ScoreExpiration:     cfg.Conscience.ScoreExpirationDefault,
		ScoreVariationBound: cfg.Conscience.ScoreVariationBound,
		AlertFrequencyLimit: cfg.Conscience.AlertFrequencyLimit,
	}); err != nil {
		glog.Errorf("oio-proxy: declaring meta2 service type: %v", err)
		return 1
	}
	go consc.Run()
	defer consc.Stop()

	resolv, err := resolver.New(cfg.Resolver, staticDirectoryLookup(consc), staticServiceLookup(consc), st)
	if err != nil {
		glog.Errorf("oio-proxy: starting resolver: %v", err)
		return 1
	}
	defer resolv.Close()

	m2 := meta2.NewEngine(cfg.Meta2, st)
	up := upload.NewEngine(cfg.Upload, st)

	srv := gateway.New(cfg.Gateway, consc, resolv, m2, up, parsedPolicies, st)
	glog.Infof("oio-proxy %s (%s): listening on %s", version, build, cfg.Gateway.Listen)
	if err := srv.ListenAndServe(); err != nil {
		glog.Errorf("oio-proxy: %v", err)
		return 1
	}
	return 0
}

func parsePolicies(spec string) (map[string]*layout.Policy, error) {
	out := make(map[string]*layout.Policy)
	for _, s := range splitNonEmpty(spec, ';') {
		p, err := layout.ParsePolicy(s)
		if err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// staticDirectoryLookup/staticServiceLookup ground the resolver's
// cache-miss callbacks on the conscience registry directly - in this
// single-binary deployment there's no separate META0/META1 directory
// service, so a cache miss resolves straight to "every known meta2
// instance" (directory) or "every known service of the requested type"
// (service), letting the caller's placement/layout logic narrow further.
func staticDirectoryLookup(c *conscience.Conscience) resolver.DirectoryLookup {
	return func(ref string) ([]string, error) {
		snaps, err := c.List("meta2", false)
		if err != nil {
			return nil, err
		}
		return addrsOf(snaps), nil
	}
}

func staticServiceLookup(c *conscience.Conscience) resolver.ServiceLookup {
	return func(ref, srvtype string) ([]string, error) {
		snaps, err := c.List(srvtype, false)
		if err != nil {
			return nil, err
		}
		return addrsOf(snaps), nil
	}
}

func addrsOf(snaps []*conscience.Snapshot) []string {
	addrs := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if !s.Locked {
			addrs = append(addrs, s.ID.Addr)
		}
	}
	return addrs
}
