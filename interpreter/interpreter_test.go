package interpreter

import (
	"context"
	"testing"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/blake2b"
	"github.com/consensus-shipyard/fendermint-sub000/crypto/secp256k1"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/resolve"
	"github.com/consensus-shipyard/fendermint-sub000/sigs"
)

type fakeVM struct {
	executed   []chainmsg.VMMessage
	checkpoint []chainmsg.Checkpoint
	topDown    []*finality.Payload
	root       common.Hash
}

func (f *fakeVM) Execute(ctx context.Context, msg chainmsg.VMMessage, sender common.NativeAddress) (Result, error) {
	f.executed = append(f.executed, msg)
	return Result{Code: CodeOK}, nil
}

func (f *fakeVM) Query(ctx context.Context, path string, data []byte, height common.Height) (QueryResult, error) {
	return QueryResult{Code: CodeOK, Value: []byte("ok")}, nil
}

func (f *fakeVM) StateRoot(ctx context.Context) (common.Hash, error) { return f.root, nil }

func (f *fakeVM) ApplyCheckpointCommit(ctx context.Context, ck chainmsg.Checkpoint) error {
	f.checkpoint = append(f.checkpoint, ck)
	return nil
}

func (f *fakeVM) ApplyTopDown(ctx context.Context, payload *finality.Payload) error {
	f.topDown = append(f.topDown, payload)
	return nil
}

type staticResolver struct{ sender common.NativeAddress }

func (r staticResolver) ResolveSender(ctx context.Context, from []byte) (common.NativeAddress, error) {
	return r.sender, nil
}

func hashOf(b byte) common.Hash {
	var h common.Hash
	h[0] = b
	return h
}

func newHarness(t *testing.T) (*ChainLayer, *fakeVM, *finality.Provider, *resolve.Pool, *secp256k1.PrivateKey, common.NativeAddress) {
	t.Helper()
	priv, err := secp256k1.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := blake2b.Sum256(priv.PublicKey())
	sender := common.NativeAddress{Protocol: 1, Payload: digest[12:]}

	vm := &fakeVM{}
	pool := resolve.New()
	fin := finality.New(finality.Config{ChainHeadDelay: 0, MaxProposalRange: 0, MinProposalInterval: 0, TipBuffer: 0},
		finality.ParentFinality{Height: 100, BlockHash: hashOf(100)})
	resolver := staticResolver{sender: sender}
	signed := NewSignedLayer(vm, resolver, 31415)
	chain := NewChainLayer(signed, vm, fin, pool)
	return chain, vm, fin, pool, priv, sender
}

func TestCheckRejectsValidatorOnlyMessages(t *testing.T) {
	chain, _, _, _, _, _ := newHarness(t)

	prop := finality.ParentFinality{Height: 101, BlockHash: hashOf(101)}
	msg := chainmsg.ChainMessage{Ipc: &chainmsg.IpcMessage{TopDownProposal: &prop}}
	res, err := chain.Check(context.Background(), msg)
	if err == nil {
		t.Fatal("expected TopDownProposal via check to be rejected as illegal (S6)")
	}
	if res.Code != CodeIllegalMessage {
		t.Fatalf("code = %v, want CodeIllegalMessage", res.Code)
	}
}

func TestDeliverSignedExecutesAfterVerification(t *testing.T) {
	chain, vm, _, _, priv, sender := newHarness(t)

	msg := chainmsg.VMMessage{From: sender.Payload, To: []byte{1, 2, 3}, Nonce: 1, Method: 7}
	sig, err := sigs.Sign(msg, common.SchemeNative, 31415, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sm := chainmsg.SignedMessage{Message: msg, Signature: sig}

	res, err := chain.Deliver(context.Background(), chainmsg.ChainMessage{Signed: &sm})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.Code != CodeOK {
		t.Fatalf("code = %v, want ok", res.Code)
	}
	if len(vm.executed) != 1 || vm.executed[0].Method != 7 {
		t.Fatalf("expected the VM to execute the verified message, got %+v", vm.executed)
	}
}

func TestDeliverSignedRejectsBadSignature(t *testing.T) {
	chain, vm, _, _, priv, sender := newHarness(t)

	msg := chainmsg.VMMessage{From: sender.Payload, To: []byte{9}, Nonce: 1}
	sig, err := sigs.Sign(msg, common.SchemeNative, 1, priv) // wrong chain id
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sm := chainmsg.SignedMessage{Message: msg, Signature: sig}

	res, err := chain.Deliver(context.Background(), chainmsg.ChainMessage{Signed: &sm})
	if err == nil {
		t.Fatal("expected chain-id mismatch to fail verification")
	}
	if res.Code != CodeSignatureInvalid {
		t.Fatalf("code = %v, want CodeSignatureInvalid", res.Code)
	}
	if len(vm.executed) != 0 {
		t.Fatal("VM must not execute a message that failed verification")
	}
}

func TestDeliverTopDownProposalCommitsFinalityAndAppliesPayload(t *testing.T) {
	chain, vm, fin, _, _, _ := newHarness(t)

	if err := fin.NewParentView(101, &finality.Payload{BlockHash: hashOf(101)}); err != nil {
		t.Fatalf("seed parent view: %v", err)
	}
	prop := finality.ParentFinality{Height: 101, BlockHash: hashOf(101)}
	msg := chainmsg.ChainMessage{Ipc: &chainmsg.IpcMessage{TopDownProposal: &prop}}

	res, err := chain.Deliver(context.Background(), msg)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.Code != CodeOK {
		t.Fatalf("code = %v, want ok", res.Code)
	}
	if fin.LastCommitted() != prop {
		t.Fatalf("last committed = %+v, want %+v", fin.LastCommitted(), prop)
	}
	if len(vm.topDown) != 1 {
		t.Fatalf("expected the VM to apply the top-down payload, got %d calls", len(vm.topDown))
	}
}

func TestDeliverBottomUpExecAppliesCheckpoint(t *testing.T) {
	chain, vm, _, _, _, _ := newHarness(t)

	ck := chainmsg.Checkpoint{SubnetID: []byte("subnet"), BlockHeight: 10}
	msg := chainmsg.ChainMessage{Ipc: &chainmsg.IpcMessage{BottomUpExec: &chainmsg.Certified[chainmsg.Checkpoint]{Value: ck}}}

	res, err := chain.Deliver(context.Background(), msg)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if res.Code != CodeOK {
		t.Fatalf("code = %v, want ok", res.Code)
	}
	if len(vm.checkpoint) != 1 || vm.checkpoint[0].BlockHeight != 10 {
		t.Fatalf("expected the checkpoint to be applied, got %+v", vm.checkpoint)
	}
}

func TestProcessProposalRejectsUnresolvedBottomUpExec(t *testing.T) {
	chain, _, _, pool, _, _ := newHarness(t)
	_ = pool // not resolved

	b := encodeBottomUpExecPlaceholder(resolve.Item{SubnetID: hashOf(1), PayloadCID: hashOf(2)})
	ok, err := chain.ProcessProposal(context.Background(), [][]byte{b})
	if err != nil {
		t.Fatalf("process proposal: %v", err)
	}
	if ok {
		t.Fatal("expected an unresolved BottomUpExec reference to reject the proposal")
	}
}

func TestProcessProposalAcceptsResolvedBottomUpExec(t *testing.T) {
	chain, _, _, pool, _, _ := newHarness(t)
	item := resolve.Item{SubnetID: hashOf(1), PayloadCID: hashOf(2)}
	pool.Add(item)
	pool.MarkResolved(item)

	b := encodeBottomUpExecPlaceholder(item)
	ok, err := chain.ProcessProposal(context.Background(), [][]byte{b})
	if err != nil {
		t.Fatalf("process proposal: %v", err)
	}
	if !ok {
		t.Fatal("expected a resolved BottomUpExec reference to pass")
	}
}

func TestPrepareProposalDrainsPoolAndAppendsTopDown(t *testing.T) {
	chain, _, fin, pool, _, _ := newHarness(t)
	item := resolve.Item{SubnetID: hashOf(3), PayloadCID: hashOf(4)}
	pool.Add(item)
	pool.MarkResolved(item)

	if err := fin.NewParentView(101, &finality.Payload{BlockHash: hashOf(101)}); err != nil {
		t.Fatalf("seed parent view: %v", err)
	}

	txs, err := chain.PrepareProposal(context.Background(), nil)
	if err != nil {
		t.Fatalf("prepare proposal: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 synthesized entries (bottom-up exec + top-down proposal), got %d", len(txs))
	}
	if pool.Len() != 0 {
		t.Fatal("expected CollectResolved to have drained the pool")
	}
}

func TestDecodeChainMessageRoundTripsSignedAndTopDown(t *testing.T) {
	chain, _, _, _, priv, sender := newHarness(t)
	_ = chain

	msg := chainmsg.VMMessage{From: sender.Payload, To: []byte{1}, Nonce: 2}
	sig, err := sigs.Sign(msg, common.SchemeNative, 31415, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw := encodeSignedMessage(chainmsg.SignedMessage{Message: msg, Signature: sig})
	decoded, err := DecodeChainMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Signed == nil || decoded.Signed.Message.Nonce != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}

	prop := finality.ParentFinality{Height: 55, BlockHash: hashOf(9)}
	raw2 := encodeTopDownProposal(prop)
	decoded2, err := DecodeChainMessage(raw2)
	if err != nil {
		t.Fatalf("decode top-down: %v", err)
	}
	if decoded2.Ipc == nil || decoded2.Ipc.TopDownProposal == nil || *decoded2.Ipc.TopDownProposal != prop {
		t.Fatalf("decoded top-down = %+v", decoded2)
	}
}

// encodeSignedMessage is the test-side mirror of decodeSignedMessage, used
// only to exercise the Bytes layer's round trip.
func encodeSignedMessage(sm chainmsg.SignedMessage) []byte {
	out := []byte{variantSigned}
	out = appendLenPrefixed(out, sm.Message.From)
	out = appendLenPrefixed(out, sm.Message.To)
	out = appendUint64(out, sm.Message.Nonce)
	out = appendLenPrefixed(out, sm.Message.Value)
	out = appendUint64(out, sm.Message.GasLimit)
	out = appendUint64(out, sm.Message.Method)
	out = appendLenPrefixed(out, sm.Message.Params)
	out = appendLenPrefixed(out, sm.Signature)
	return out
}

func appendUint64(out []byte, v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return append(out, b...)
}
