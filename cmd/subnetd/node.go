package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cmtcfg "github.com/cometbft/cometbft/config"
	"github.com/cometbft/cometbft/crypto/secp256k1"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmttypes "github.com/cometbft/cometbft/types"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/consensus-shipyard/fendermint-sub000/genesis"
	"github.com/consensus-shipyard/fendermint-sub000/log"
	"github.com/consensus-shipyard/fendermint-sub000/vm/memvm"
)

// writeCometGenesis bridges subnetd's own genesis document (decoded by
// genesis.Decode, spec §6) into a CometBFT GenesisDoc: the raw subnetd
// genesis bytes travel through unmodified as AppState, since InitChain
// (abci/abci.go) decodes them itself; only the validator set and chain ID
// need restating in CometBFT's own vocabulary for the consensus engine to
// bootstrap from.
func writeCometGenesis(cometCfg *cmtcfg.Config, g *genesis.Genesis, rawGenesis []byte, chainID uint64) error {
	validators := make([]cmttypes.GenesisValidator, 0, len(g.Validators))
	for i, v := range g.Validators {
		pub := secp256k1.PubKey(v.PublicKey)
		validators = append(validators, cmttypes.GenesisValidator{
			Address: pub.Address(),
			PubKey:  pub,
			Power:   int64(v.Power),
			Name:    fmt.Sprintf("validator-%d", i),
		})
	}

	doc := cmttypes.GenesisDoc{
		ChainID:         fmt.Sprintf("subnetd-%s-%d", g.ChainName, chainID),
		GenesisTime:     time.Unix(g.Timestamp, 0).UTC(),
		Validators:      validators,
		AppState:        json.RawMessage(rawGenesis),
		ConsensusParams: cmttypes.DefaultConsensusParams(),
	}

	path := cometCfg.GenesisFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("subnetd: create comet config dir: %w", err)
	}
	return doc.SaveAs(path)
}

// buildCometNode assembles the CometBFT consensus engine around app,
// rooted at homeDir. Private-validator and node-key material is generated
// on first run and reused afterward, the same persist-or-generate
// convention CometBFT's own cmd/cometbft init uses.
func buildCometNode(homeDir, moniker string, app abcitypes.Application, g *genesis.Genesis, rawGenesis []byte, chainID uint64) (*node.Node, error) {
	cometCfg := cmtcfg.DefaultConfig()
	cometCfg.SetRoot(homeDir)
	cometCfg.Moniker = moniker
	cmtcfg.EnsureRoot(homeDir)

	pv := privval.LoadOrGenFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())

	nodeKey, err := p2p.LoadOrGenNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("subnetd: load or generate node key: %w", err)
	}

	if _, err := os.Stat(cometCfg.GenesisFile()); os.IsNotExist(err) {
		if err := writeCometGenesis(cometCfg, g, rawGenesis, chainID); err != nil {
			return nil, err
		}
	}

	clientCreator := proxy.NewLocalClientCreator(app)

	n, err := node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		clientCreator,
		node.DefaultGenesisDocProviderFunc(cometCfg),
		cmtcfg.DefaultDBProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)),
	)
	if err != nil {
		return nil, fmt.Errorf("subnetd: construct cometbft node: %w", err)
	}
	return n, nil
}

// watchCommittedBlocks subscribes to the consensus engine's own new-block
// events and feeds each committed header into the in-memory VM stand-in
// (memvm.VM.CommitBlock) so the Ethereum-compatible read views and push
// subscriptions (ethrpc/filters, ethrpc/ws) observe real chain progress.
func watchCommittedBlocks(ctx context.Context, n *node.Node, vm *memvm.VM, lg log.Logger) {
	eventBus := n.EventBus()
	out, err := eventBus.Subscribe(ctx, "subnetd-commit-watcher", cmttypes.EventQueryNewBlock, 32)
	if err != nil {
		lg.Error("subscribe to new-block events failed", "err", err)
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-out:
				if !ok {
					return
				}
				ev, ok := msg.Data().(cmttypes.EventDataNewBlock)
				if !ok {
					continue
				}
				var hash, parentHash [32]byte
				copy(hash[:], ev.Block.Hash())
				copy(parentHash[:], ev.Block.LastBlockID.Hash)
				vm.CommitBlock(uint64(ev.Block.Height), hash, parentHash, ev.Block.Time.Unix())
			}
		}
	}()
}
