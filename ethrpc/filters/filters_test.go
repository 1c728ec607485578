package filters

import (
	"context"
	"testing"
	"time"

	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/event"
	"github.com/consensus-shipyard/fendermint-sub000/internal/ethapi"
)

type fakeBackend struct {
	heads   event.FeedOf[Head]
	pending event.FeedOf[common.Hash]
	logs    event.FeedOf[[]ethapi.Log]
	height  common.Height
}

func (b *fakeBackend) SubscribeNewHeads(ch chan Head) event.Subscription           { return b.heads.Subscribe(ch) }
func (b *fakeBackend) SubscribePendingTx(ch chan common.Hash) event.Subscription   { return b.pending.Subscribe(ch) }
func (b *fakeBackend) SubscribeLogs(ch chan []ethapi.Log) event.Subscription       { return b.logs.Subscribe(ch) }
func (b *fakeBackend) CurrentHeight(ctx context.Context) (common.Height, error)    { return b.height, nil }

func hashOf(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func waitForCondition(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewBlockFilterAccumulatesBlockHashes(t *testing.T) {
	backend := &fakeBackend{}
	fs := NewFilterSystem(backend, Config{Timeout: time.Minute})
	defer fs.Close()

	id, err := fs.NewBlockFilter()
	if err != nil {
		t.Fatalf("new block filter: %v", err)
	}

	backend.heads.Send(Head{Height: 1, Hash: hashOf(1)})
	backend.heads.Send(Head{Height: 2, Hash: hashOf(2)})

	// Each poll drains the accumulator, so count hashes across polls.
	var changes any
	var total int
	waitForCondition(t, time.Second, func() bool {
		changes, err = fs.GetFilterChanges(id)
		if err != nil {
			t.Fatalf("get filter changes: %v", err)
		}
		hashes, _ := changes.([]common.Hash)
		total += len(hashes)
		return total == 2
	})
}

func TestGetFilterChangesDrainsAccumulator(t *testing.T) {
	backend := &fakeBackend{}
	fs := NewFilterSystem(backend, Config{Timeout: time.Minute})
	defer fs.Close()

	id, _ := fs.NewBlockFilter()
	backend.heads.Send(Head{Height: 1, Hash: hashOf(1)})

	waitForCondition(t, time.Second, func() bool {
		changes, _ := fs.GetFilterChanges(id)
		hashes, _ := changes.([]common.Hash)
		return len(hashes) == 1
	})

	changes, err := fs.GetFilterChanges(id)
	if err != nil {
		t.Fatalf("get filter changes: %v", err)
	}
	hashes, _ := changes.([]common.Hash)
	if len(hashes) != 0 {
		t.Fatalf("expected the accumulator to have been drained, got %d entries", len(hashes))
	}
}

func TestUninstallFilterRemovesIt(t *testing.T) {
	backend := &fakeBackend{}
	fs := NewFilterSystem(backend, Config{Timeout: time.Minute})
	defer fs.Close()

	id, _ := fs.NewBlockFilter()
	if !fs.UninstallFilter(id) {
		t.Fatal("expected uninstall to succeed")
	}
	if _, err := fs.GetFilterChanges(id); err == nil {
		t.Fatal("expected an uninstalled filter id to be unknown")
	}
}

func TestStaleFilterIsGarbageCollected(t *testing.T) {
	backend := &fakeBackend{}
	fs := NewFilterSystem(backend, Config{Timeout: 30 * time.Millisecond})
	defer fs.Close()

	id, _ := fs.NewBlockFilter()

	// Polling would refresh the filter's last-poll time, so watch the
	// registry directly instead.
	waitForCondition(t, time.Second, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		_, ok := fs.filters[id]
		return !ok
	})
	if _, err := fs.GetFilterChanges(id); err == nil {
		t.Fatal("expected a garbage-collected filter id to be unknown")
	}
}

func TestLogFilterMatchesOnAddress(t *testing.T) {
	backend := &fakeBackend{}
	fs := NewFilterSystem(backend, Config{Timeout: time.Minute})
	defer fs.Close()

	want := common.BytesToAddress([]byte{9})
	other := common.BytesToAddress([]byte{8})
	id, err := fs.NewFilter(ethapi.FilterCriteria{Addresses: []common.Address{want}})
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	backend.logs.Send([]ethapi.Log{{Address: want}, {Address: other}})

	waitForCondition(t, time.Second, func() bool {
		logs, err := fs.GetFilterLogs(id)
		if err != nil {
			t.Fatalf("get filter logs: %v", err)
		}
		return len(logs) == 1 && logs[0].Address == want
	})
}
