// Package snapshot implements the periodic state-snapshot manager (spec
// §4.I): at every committed height on the snapshot-interval boundary, it
// walks the content-addressed state graph from its root, streams it to an
// archive in deterministic topological order, checksums and chunks it,
// then atomically publishes the bundle.
//
// Grounded on go-ethereum's core/state/snapshot package: its disk-layer /
// diff-layer generation loop walks a trie in deterministic order and
// persists it incrementally; this port generalizes that walk from "a
// Merkle-Patricia trie of accounts" to "an arbitrary content-addressed
// graph reachable from a root hash", since the VM's actual state
// representation is out of scope (§1) — only a StateReader walk contract
// is in scope here.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/log"
	"github.com/consensus-shipyard/fendermint-sub000/metrics"
)

// StateReader is the VM's read contract this manager needs (spec §1/§6):
// a deterministic topological walk of the content-addressed graph rooted
// at a given state root. The VM itself is an external collaborator, out
// of scope.
type StateReader interface {
	// Walk streams (key, value) node pairs from root in deterministic
	// topological order, calling emit for each. It returns once every
	// reachable node has been emitted or ctx is canceled.
	Walk(ctx context.Context, root common.Hash, emit func(key, value []byte) error) error
	StateParams(ctx context.Context) ([]byte, error)
}

// SyncStatus reports whether the node is still catching up, so the
// manager can skip a capture while syncing (spec §4.I).
type SyncStatus interface {
	IsCatchingUp(ctx context.Context) (bool, error)
}

// Config configures the snapshot manager.
type Config struct {
	Interval  uint64 // snapshot_interval: capture every h % Interval == 0
	ChunkSize int    // fixed chunk size in bytes for parts/<index>.part
	Dir       string // snapshot directory root
}

const defaultChunkSize = 16 << 20 // 16 MiB, matching go-ethereum's journal chunk sizing order of magnitude

var (
	gaugeInFlight  = metrics.NewGauge("snapshot", "in_flight", "1 while a snapshot capture is running, else 0")
	counterTaken   = metrics.NewCounter("snapshot", "captures_total", "completed snapshot captures")
	counterSkipped = metrics.NewCounter("snapshot", "skipped_total", "snapshot captures skipped (syncing or already in flight)")
)

// Manager drives periodic snapshot capture (spec §4.I). At most one
// capture runs at a time, enforced by the atomic inFlight flag rather than
// a mutex held across the (slow, I/O-bound) capture itself; a capture
// requested while one is running is skipped, not queued.
type Manager struct {
	cfg    Config
	reader StateReader
	status SyncStatus
	log    log.Logger

	inFlight int32
}

func NewManager(cfg Config, reader StateReader, status SyncStatus) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Manager{cfg: cfg, reader: reader, status: status, log: log.New("component", "snapshot")}
}

// MaybeCapture captures a snapshot at height h if h is on the configured
// boundary, the node is not syncing, and no capture is already running
// (spec §4.I). It returns immediately (capture==false) when none of those
// hold.
func (m *Manager) MaybeCapture(ctx context.Context, h common.Height, root common.Hash) (captured bool, err error) {
	if m.cfg.Interval == 0 || h%m.cfg.Interval != 0 {
		return false, nil
	}

	syncing, err := m.status.IsCatchingUp(ctx)
	if err != nil {
		return false, fmt.Errorf("snapshot: sync status: %w", err)
	}
	if syncing {
		m.log.Debug("skipping snapshot capture: node is syncing", "height", h)
		counterSkipped.Inc()
		return false, nil
	}

	if !atomic.CompareAndSwapInt32(&m.inFlight, 0, 1) {
		m.log.Debug("skipping snapshot capture: one already in flight", "height", h)
		counterSkipped.Inc()
		return false, nil
	}
	gaugeInFlight.Set(1)
	defer func() {
		atomic.StoreInt32(&m.inFlight, 0)
		gaugeInFlight.Set(0)
	}()

	if err := m.capture(ctx, h, root); err != nil {
		return false, err
	}
	counterTaken.Inc()
	return true, nil
}

// capture performs the walk, chunking, checksum, and atomic publish (spec
// §4.I and §6's "snapshot-<height>/{manifest, parts/<index>.part,
// parts.sha256}" layout).
func (m *Manager) capture(ctx context.Context, h common.Height, root common.Hash) error {
	params, err := m.reader.StateParams(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: state params: %w", err)
	}

	stagingDir := filepath.Join(m.cfg.Dir, fmt.Sprintf(".staging-%020d", h))
	if err := os.MkdirAll(filepath.Join(stagingDir, "parts"), 0o755); err != nil {
		return fmt.Errorf("snapshot: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	chunker := newChunkWriter(filepath.Join(stagingDir, "parts"), m.cfg.ChunkSize)
	digest := sha256.New()
	walkErr := m.reader.Walk(ctx, root, func(key, value []byte) error {
		rec := encodeRecord(key, value)
		digest.Write(rec)
		return chunker.Write(rec)
	})
	if walkErr != nil {
		return fmt.Errorf("snapshot: walk: %w", walkErr)
	}
	numParts, err := chunker.Close()
	if err != nil {
		return fmt.Errorf("snapshot: close chunks: %w", err)
	}

	sum := hex.EncodeToString(digest.Sum(nil))
	if err := os.WriteFile(filepath.Join(stagingDir, "parts.sha256"), []byte(sum+"\n"), 0o644); err != nil {
		return fmt.Errorf("snapshot: write checksum: %w", err)
	}

	manifest := Manifest{
		Height:    h,
		StateRoot: root,
		Params:    params,
		NumParts:  numParts,
		Checksum:  sum,
	}
	manifestBytes, err := manifest.encode()
	if err != nil {
		return fmt.Errorf("snapshot: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stagingDir, "manifest"), manifestBytes, 0o644); err != nil {
		return fmt.Errorf("snapshot: write manifest: %w", err)
	}

	finalDir := filepath.Join(m.cfg.Dir, fmt.Sprintf("snapshot-%d", h))
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return fmt.Errorf("snapshot: atomic publish: %w", err)
	}
	m.log.Info("captured snapshot", "height", h, "parts", numParts, "checksum", sum)
	return nil
}

// Manifest is the published snapshot's metadata file.
type Manifest struct {
	Height    common.Height
	StateRoot common.Hash
	Params    []byte
	NumParts  int
	Checksum  string
}

func encodeRecord(key, value []byte) []byte {
	out := make([]byte, 0, 8+len(key)+8+len(value))
	out = appendUint64(out, uint64(len(key)))
	out = append(out, key...)
	out = appendUint64(out, uint64(len(value)))
	out = append(out, value...)
	return out
}

func appendUint64(out []byte, v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return append(out, b...)
}
