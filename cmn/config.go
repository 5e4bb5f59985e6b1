// Package cmn provides common low-level types and utilities: configuration,
// the error taxonomy, the hierarchical object URL, and JSON helpers shared
// by every other package in this module.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/golang/glog"

	"github.com/GuillaumeDelaporte/oio-sds/cmn/jsp"
)

type (
	// ConscienceConfig configures the scoring & registry plane.
	ConscienceConfig struct {
		ScoreExpirationDefault time.Duration `json:"score_expiration"`
		AlertFrequencyLimit    time.Duration `json:"alert_frequency_limit"`
		ScoreVariationBound    int32         `json:"score_variation_bound"`
	}

	// ResolverConfig configures the two-tier cache.
	ResolverConfig struct {
		CSM0TTL      time.Duration `json:"csm0_ttl"`
		CSM0Max      uint          `json:"csm0_max"`
		ServicesTTL  time.Duration `json:"services_ttl"`
		ServicesMax  uint          `json:"services_max"`
		CacheStripes int           `json:"cache_stripes"`
	}

	// Meta2Config configures the container engine.
	Meta2Config struct {
		DataDir            string `json:"data_dir"`
		DefaultMaxVersions  int64  `json:"default_max_versions"`
		DefaultRetentionSec int64  `json:"default_retention_delay"`
		DefaultPolicy       string `json:"default_storage_policy"`
	}

	// UploadConfig configures the parallel PUT fan-out engine.
	UploadConfig struct {
		TimeoutConnect time.Duration `json:"timeout_cnx"`
		TimeoutOp      time.Duration `json:"timeout_op"`
	}

	GatewayConfig struct {
		Listen          string `json:"listen"`
		MaxRedirects    int    `json:"max_redirects"`
		JWTSigningKey   string `json:"jwt_signing_key"`
	}

	LogConfig struct {
		Dir     string `json:"dir"`
		Level   string `json:"level"`
		MaxSize int64  `json:"max_size"`
	}

	Config struct {
		Version    int64            `json:"version,string"`
		Conscience ConscienceConfig `json:"conscience"`
		Resolver   ResolverConfig   `json:"resolver"`
		Meta2      Meta2Config      `json:"meta2"`
		Upload     UploadConfig     `json:"upload"`
		Gateway    GatewayConfig    `json:"gateway"`
		Log        LogConfig        `json:"log"`
	}
)

func (c *Config) JspOpts() jsp.Options { return jsp.CCSign() }

func (c *Config) Validate() error {
	if c.Resolver.CacheStripes <= 0 {
		c.Resolver.CacheStripes = 32
	}
	if c.Conscience.ScoreVariationBound <= 0 {
		c.Conscience.ScoreVariationBound = 20
	}
	if c.Meta2.DefaultPolicy == "" {
		c.Meta2.DefaultPolicy = "NONE"
	}
	if c.Upload.TimeoutConnect <= 0 {
		c.Upload.TimeoutConnect = 2 * time.Second
	}
	if c.Upload.TimeoutOp <= 0 {
		c.Upload.TimeoutOp = 30 * time.Second
	}
	if c.Gateway.MaxRedirects <= 0 {
		c.Gateway.MaxRedirects = 7 // stored on the gateway; no code path follows redirects or reads it
	}
	return nil
}

// DefaultConfig returns sane defaults, used when no config file is present
// (devtools, tests, single-binary demo mode).
func DefaultConfig() *Config {
	c := &Config{
		Version: 1,
		Conscience: ConscienceConfig{
			ScoreExpirationDefault: 30 * time.Second,
			AlertFrequencyLimit:    30 * time.Second,
			ScoreVariationBound:    20,
		},
		Resolver: ResolverConfig{
			CSM0TTL:      3600 * time.Second,
			CSM0Max:      1 << 16,
			ServicesTTL:  3600 * time.Second,
			ServicesMax:  1 << 16,
			CacheStripes: 32,
		},
		Meta2: Meta2Config{
			DataDir:             "./data/meta2",
			DefaultMaxVersions:  0,
			DefaultRetentionSec: 0,
			DefaultPolicy:       "NONE",
		},
		Upload: UploadConfig{
			TimeoutConnect: 2 * time.Second,
			TimeoutOp:      30 * time.Second,
		},
		Gateway: GatewayConfig{
			Listen:       ":6000",
			MaxRedirects: 7,
		},
		Log: LogConfig{
			Dir:     "./log",
			Level:   "2",
			MaxSize: 1 << 20,
		},
	}
	_ = c.Validate()
	return c
}

///////////////////////
// globalConfigOwner //
///////////////////////

// GCO (Global Config Owner) holds the process-wide Config behind an atomic
// pointer so concurrent readers never observe a half-updated value.
type globalConfigOwner struct {
	c   unsafe.Pointer // *Config
	mtx sync.Mutex
}

var GCO = &globalConfigOwner{}

func (gco *globalConfigOwner) Get() *Config {
	p := atomic.LoadPointer(&gco.c)
	if p == nil {
		return DefaultConfig()
	}
	return (*Config)(p)
}

func (gco *globalConfigOwner) Put(config *Config) {
	atomic.StorePointer(&gco.c, unsafe.Pointer(config))
}

func (gco *globalConfigOwner) BeginUpdate() *Config {
	gco.mtx.Lock()
	cur := gco.Get()
	clone := *cur
	return &clone
}

func (gco *globalConfigOwner) CommitUpdate(config *Config) {
	atomic.StorePointer(&gco.c, unsafe.Pointer(config))
	gco.mtx.Unlock()
}

func (gco *globalConfigOwner) DiscardUpdate() { gco.mtx.Unlock() }

// LoadConfig reads the config file at path, validates it, and installs it as
// the global config. Falls back to DefaultConfig() if path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		c := DefaultConfig()
		GCO.Put(c)
		return c, nil
	}
	c := &Config{}
	if _, err := jsp.LoadMeta(path, c); err != nil {
		if os.IsNotExist(err) {
			c = DefaultConfig()
		} else {
			return nil, fmt.Errorf("failed to load config %q: %w", path, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	GCO.Put(c)
	glog.Infof("config loaded from %q (meta2.data_dir=%q gateway.listen=%q)",
		path, c.Meta2.DataDir, c.Gateway.Listen)
	return c, nil
}

func SaveConfig(path string, c *Config) error {
	return jsp.SaveMeta(path, c)
}
