package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is subnetd's own application-level configuration, loaded from a
// TOML file (the teacher corpus's convention for everything above the
// consensus engine's own config.toml, via BurntSushi/toml — already a
// go.mod dependency). It is deliberately narrow: CometBFT's own node
// config (p2p, mempool, consensus timeouts) lives in its own config.toml
// under CometBFTHome and is left to CometBFT's own loader.
type Config struct {
	Moniker      string `toml:"moniker"`
	CometBFTHome string `toml:"cometbft_home"`
	GenesisPath  string `toml:"genesis_path"`

	ParentRPCURL     string        `toml:"parent_rpc_url"`
	ParentRPCTimeout time.Duration `toml:"parent_rpc_timeout"`

	Finality FinalityConfig `toml:"finality"`
	Sync     SyncConfig     `toml:"sync"`
	Snapshot SnapshotConfig `toml:"snapshot"`

	RPC RPCConfig `toml:"rpc"`

	SubnetIsRoot          bool  `toml:"subnet_is_root"`
	SubnetMajorityPercent uint8 `toml:"subnet_majority_percent"`
}

type FinalityConfig struct {
	ChainHeadDelay      uint64 `toml:"chain_head_delay"`
	MaxProposalRange    uint64 `toml:"max_proposal_range"`
	MinProposalInterval uint64 `toml:"min_proposal_interval"`
	TipBuffer           uint64 `toml:"tip_buffer"`
}

type SyncConfig struct {
	ChainHeadDelay uint64        `toml:"chain_head_delay"`
	BackoffBase    time.Duration `toml:"backoff_base"`
	BackoffMax     time.Duration `toml:"backoff_max"`
	RetryLimit     int           `toml:"retry_limit"`
	TickInterval   time.Duration `toml:"tick_interval"`
}

type SnapshotConfig struct {
	Interval  uint64 `toml:"interval"`
	ChunkSize int    `toml:"chunk_size"`
	Dir       string `toml:"dir"`
}

type RPCConfig struct {
	HTTPAddr       string   `toml:"http_addr"`
	WSAddr         string   `toml:"ws_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// defaultConfig returns the values a fresh subnetd node starts from absent
// an explicit config file entry, in the same spirit as go-ethereum's
// cmd/geth defaults layered under flag/file overrides.
func defaultConfig() Config {
	return Config{
		Moniker:          "subnetd",
		CometBFTHome:     "./cometbft-home",
		GenesisPath:      "./genesis.json",
		ParentRPCTimeout: 10 * time.Second,
		Finality: FinalityConfig{
			ChainHeadDelay:      5,
			MaxProposalRange:    100,
			MinProposalInterval: 1,
		},
		Sync: SyncConfig{
			ChainHeadDelay: 5,
			BackoffBase:    time.Second,
			BackoffMax:     30 * time.Second,
			RetryLimit:     10,
			TickInterval:   2 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Interval:  1000,
			ChunkSize: 16 << 20,
			Dir:       "./snapshots",
		},
		RPC: RPCConfig{
			HTTPAddr:       "127.0.0.1:8545",
			WSAddr:         "127.0.0.1:8546",
			AllowedOrigins: []string{"*"},
		},
		SubnetMajorityPercent: 67,
	}
}

// loadConfig reads path as TOML over the defaults, matching the teacher
// corpus's "defaults, then override from file" layering.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("subnetd: decode config %s: %w", path, err)
	}
	return cfg, nil
}
