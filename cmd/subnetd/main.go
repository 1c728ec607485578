// Command subnetd runs the application-layer core of a subnet node: the
// ABCI application (abci), the parent-chain syncer and finality provider
// (ipc/sync, ipc/finality), the cross-message resolve pool (ipc/resolve),
// the checkpoint engine (checkpoint), the snapshot manager (snapshot), and
// the Ethereum-compatible JSON-RPC facade (ethrpc, internal/ethapi), all
// driven by a CometBFT consensus engine.
//
// Grounded on go-ethereum's cmd/geth composition-root shape (flags → load
// config → construct the long-lived pieces → start → wait for a signal),
// adapted to CometBFT's node.NewNode entry point in place of go-ethereum's
// own p2p stack, since this repo's consensus engine is CometBFT, not a
// hand-rolled devp2p node.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consensus-shipyard/fendermint-sub000/abci"
	"github.com/consensus-shipyard/fendermint-sub000/checkpoint"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/ethdb/memorydb"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc/filters"
	"github.com/consensus-shipyard/fendermint-sub000/ethrpc/ws"
	"github.com/consensus-shipyard/fendermint-sub000/genesis"
	"github.com/consensus-shipyard/fendermint-sub000/interpreter"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/parent"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/resolve"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/sync"
	"github.com/consensus-shipyard/fendermint-sub000/log"
	"github.com/consensus-shipyard/fendermint-sub000/snapshot"
	"github.com/consensus-shipyard/fendermint-sub000/vm/memvm"
)

func main() {
	configPath := flag.String("config", "", "path to subnetd's TOML config file")
	flag.Parse()

	lg := log.New("component", "subnetd")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		lg.Crit("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, lg); err != nil {
		lg.Crit("subnetd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, lg log.Logger) error {
	rawGenesis, err := os.ReadFile(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("subnetd: read genesis %s: %w", cfg.GenesisPath, err)
	}
	g, err := genesis.Decode(rawGenesis)
	if err != nil {
		return fmt.Errorf("subnetd: decode genesis: %w", err)
	}
	chainID := genesis.ChainID(g.ChainName)

	gwCfg := memvm.GatewayConfig{IsRoot: cfg.SubnetIsRoot, MajorityPercentage: cfg.SubnetMajorityPercent}
	var subnetID []byte
	if g.IPC != nil && g.IPC.Gateway != nil {
		gwCfg.SubnetID = g.IPC.Gateway.SubnetID
		gwCfg.Period = g.IPC.Gateway.BottomUpCheckPeriod
		gwCfg.MajorityPercentage = g.IPC.Gateway.MajorityPercentage
		subnetID = g.IPC.Gateway.SubnetID
	}

	vm := memvm.New(chainID, gwCfg, g.Accounts)

	var parentProxy parent.Proxy
	if cfg.ParentRPCURL != "" {
		transport := newHTTPRPCTransport(cfg.ParentRPCURL, cfg.ParentRPCTimeout)
		parentProxy = parent.NewRPCProxy(transport)
	} else {
		lg.Warn("no parent_rpc_url configured, running against a static (no-op) parent proxy")
		parentProxy = parent.NewStaticProxy(0)
	}

	finProvider := finality.New(finality.Config{
		ChainHeadDelay:      cfg.Finality.ChainHeadDelay,
		MaxProposalRange:    cfg.Finality.MaxProposalRange,
		MinProposalInterval: cfg.Finality.MinProposalInterval,
		TipBuffer:           cfg.Finality.TipBuffer,
	}, finality.ParentFinality{Height: 0, BlockHash: common.Hash{}})

	syncer := sync.New(parentProxy, finProvider, vm, finProvider, sync.Config{
		ChainHeadDelay: cfg.Sync.ChainHeadDelay,
		BackoffBase:    cfg.Sync.BackoffBase,
		BackoffMax:     cfg.Sync.BackoffMax,
		RetryLimit:     cfg.Sync.RetryLimit,
	})

	pool := resolve.New()

	signed := interpreter.NewSignedLayer(vm, vm, chainID)
	chain := interpreter.NewChainLayer(signed, vm, finProvider, pool)

	store := checkpoint.NewStore(memorydb.New())
	ckptEngine := checkpoint.NewEngine(vm, store, subnetID, uint64(g.PowerScale))

	app := abci.NewApplication(chain, vm, finProvider, ckptEngine)

	snapMgr := snapshot.NewManager(snapshot.Config{
		Interval:  cfg.Snapshot.Interval,
		ChunkSize: cfg.Snapshot.ChunkSize,
		Dir:       cfg.Snapshot.Dir,
	}, vm, vm)

	cometNode, err := buildCometNode(cfg.CometBFTHome, cfg.Moniker, app, g, rawGenesis, chainID)
	if err != nil {
		return err
	}
	if err := cometNode.Start(); err != nil {
		return fmt.Errorf("subnetd: start cometbft node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchCommittedBlocks(ctx, cometNode, vm, lg)
	go runSyncLoop(ctx, syncer, cfg.Sync.TickInterval, lg)
	go runCheckpointBroadcastLoop(ctx, lg)
	go runSnapshotLoop(ctx, snapMgr, vm, lg)

	rpcServer := ethrpc.NewServer()
	backend := vm
	if err := rpcServer.RegisterName("eth", ethapi.NewAPI(backend)); err != nil {
		return fmt.Errorf("subnetd: register eth namespace: %w", err)
	}

	filterSystem := filters.NewFilterSystem(backend, filters.Config{Timeout: 5 * time.Minute})
	defer filterSystem.Close()
	if err := rpcServer.RegisterName("eth", filterSystem); err != nil {
		return fmt.Errorf("subnetd: register filter methods: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", ethrpc.HTTPHandler(rpcServer, cfg.RPC.AllowedOrigins))
	mux.Handle("/ws", ws.Handler(rpcServer, filterSystem))

	httpSrv := &http.Server{Addr: cfg.RPC.HTTPAddr, Handler: mux}
	go func() {
		lg.Info("eth json-rpc listening", "addr", cfg.RPC.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("rpc http server stopped", "err", err)
		}
	}()

	waitForShutdown(lg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	cometNode.Stop()
	return nil
}

// runSyncLoop drives the parent syncer's tail/to_confirm/head state machine
// (ipc/sync.Syncer.Tick) on a fixed tick, the same polling-loop idiom the
// teacher corpus's downloader/fetcher uses.
func runSyncLoop(ctx context.Context, syncer *sync.Syncer, interval time.Duration, lg log.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syncer.Tick(ctx); err != nil {
				lg.Debug("parent syncer tick", "err", err)
			}
		}
	}
}

// runSnapshotLoop ticks the snapshot manager at the same cadence as block
// commits in practice would; MaybeCapture itself decides (by height modulo
// the configured interval) whether a capture actually happens.
func runSnapshotLoop(ctx context.Context, mgr *snapshot.Manager, vm *memvm.VM, lg log.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h, err := vm.CurrentHeight(ctx)
			if err != nil {
				continue
			}
			root, err := vm.StateRoot(ctx)
			if err != nil {
				continue
			}
			if _, err := mgr.MaybeCapture(ctx, h, root); err != nil {
				lg.Warn("snapshot capture failed", "height", h, "err", err)
			}
		}
	}
}

// runCheckpointBroadcastLoop is a placeholder for driving
// checkpoint.SerialBroadcaster.BroadcastIncompleteSignatures: it is started
// but only waits for shutdown, since no Signer/Broadcaster pair (both out
// of scope per spec §1: key custody and the outbound transport) is wired in.
func runCheckpointBroadcastLoop(ctx context.Context, lg log.Logger) {
	<-ctx.Done()
}

func waitForShutdown(lg log.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	lg.Info("received shutdown signal", "signal", s.String())
}
