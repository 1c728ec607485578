package interpreter

import (
	"context"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/common"
	"github.com/consensus-shipyard/fendermint-sub000/sigs"
)

// SenderResolver resolves a signed message's declared sender into a
// NativeAddress with a known scheme. The VM's actor/address-manager state
// is out of scope (§1); this is the narrow read contract the signed layer
// needs from it.
type SenderResolver interface {
	ResolveSender(ctx context.Context, from []byte) (common.NativeAddress, error)
}

// SignedLayer verifies a SignedMessage's signature per spec §4.G and
// forwards the underlying VM message to the wrapped VM (spec §4.H: "the
// Signed layer ... forwards the underlying VM message").
type SignedLayer struct {
	inner    VM
	resolver SenderResolver
	chainID  uint64
}

func NewSignedLayer(inner VM, resolver SenderResolver, chainID uint64) *SignedLayer {
	return &SignedLayer{inner: inner, resolver: resolver, chainID: chainID}
}

// Deliver verifies then executes a signed message (the `Signed → inner`
// arm of the chain layer's `deliver`, spec §4.H).
func (s *SignedLayer) Deliver(ctx context.Context, sm chainmsg.SignedMessage) (Result, error) {
	sender, err := s.resolver.ResolveSender(ctx, sm.Message.From)
	if err != nil {
		return errResult(fmt.Errorf("%w: resolve sender: %v", ErrDecode, err), sm.Message.GasLimit), err
	}
	ok, err := sigs.Verify(sm.Message, sm.Signature, sender, common.EthNamespace, s.chainID)
	if err != nil {
		werr := fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		return errResult(werr, sm.Message.GasLimit), werr
	}
	if !ok {
		werr := fmt.Errorf("%w: signature does not match sender", ErrSignatureInvalid)
		return errResult(werr, sm.Message.GasLimit), werr
	}
	return s.inner.Execute(ctx, sm.Message, sender)
}

// Check runs the signature-verification-only path for the mempool check
// (the `Signed` arm of the chain layer's `check`, spec §4.H): it verifies
// but does not execute.
func (s *SignedLayer) Check(ctx context.Context, sm chainmsg.SignedMessage) (Result, error) {
	sender, err := s.resolver.ResolveSender(ctx, sm.Message.From)
	if err != nil {
		return errResult(fmt.Errorf("%w: resolve sender: %v", ErrDecode, err), sm.Message.GasLimit), err
	}
	ok, err := sigs.Verify(sm.Message, sm.Signature, sender, common.EthNamespace, s.chainID)
	if err != nil || !ok {
		werr := fmt.Errorf("%w: signature check failed", ErrSignatureInvalid)
		return errResult(werr, sm.Message.GasLimit), werr
	}
	return Result{Code: CodeOK, GasWanted: sm.Message.GasLimit}, nil
}
