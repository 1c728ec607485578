package parent

import (
	"context"
	"sync"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

// staticBlock is one seeded parent height: either a real block (NullRound
// false) or a null round (NullRound true, no hash/messages/changes).
type staticBlock struct {
	NullRound  bool
	ParentHash common.Hash
	BlockHash  common.Hash
	Changes    []ValidatorChange
	Messages   []CrossMessage
}

// StaticProxy is an in-memory Proxy for tests, mirroring the teacher
// corpus's "direct" execution-client variant (seeded state, no network).
type StaticProxy struct {
	mu     sync.RWMutex
	genesis common.Height
	head   common.Height
	blocks map[common.Height]staticBlock
}

func NewStaticProxy(genesis common.Height) *StaticProxy {
	return &StaticProxy{genesis: genesis, blocks: make(map[common.Height]staticBlock)}
}

// SeedBlock registers a non-null block at height h.
func (p *StaticProxy) SeedBlock(h common.Height, parentHash, blockHash common.Hash, changes []ValidatorChange, msgs []CrossMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks[h] = staticBlock{ParentHash: parentHash, BlockHash: blockHash, Changes: changes, Messages: msgs}
	if h > p.head {
		p.head = h
	}
}

// SeedNullRound registers height h as a null round.
func (p *StaticProxy) SeedNullRound(h common.Height) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks[h] = staticBlock{NullRound: true}
	if h > p.head {
		p.head = h
	}
}

// SetHead directly sets the chain head height, for simulating parent-chain
// progress independent of SeedBlock.
func (p *StaticProxy) SetHead(h common.Height) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head = h
}

func (p *StaticProxy) ChainHeadHeight(ctx context.Context) (common.Height, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.head, nil
}

func (p *StaticProxy) GenesisEpoch(ctx context.Context) (common.Height, error) {
	return p.genesis, nil
}

func (p *StaticProxy) BlockHash(ctx context.Context, h common.Height) (BlockHashes, error) {
	if h == 1 {
		return BlockHashes{}, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.blocks[h]
	if !ok {
		return BlockHashes{}, &Error{Reason: "block_hash", Height: h, Err: ErrHeightNotFound}
	}
	if b.NullRound {
		return BlockHashes{NullRound: true}, nil
	}
	return BlockHashes{ParentHash: b.ParentHash, BlockHash: b.BlockHash}, nil
}

func (p *StaticProxy) TopDownMsgs(ctx context.Context, h common.Height, blockHash common.Hash) ([]CrossMessage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.blocks[h]
	if !ok || b.NullRound {
		return nil, nil
	}
	return b.Messages, nil
}

func (p *StaticProxy) ValidatorChanges(ctx context.Context, h common.Height) ([]ValidatorChange, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.blocks[h]
	if !ok || b.NullRound {
		return nil, nil
	}
	return b.Changes, nil
}
