package interpreter

import (
	"encoding/binary"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/chainmsg"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
)

// Wire variant discriminators for the chain-message binary format (spec
// §6: "deterministic tuple encoding ... Two variants: Signed(signed_message)
// and Ipc(ipc_message)").
const (
	variantSigned byte = 0
	variantIpc    byte = 1

	ipcVariantBottomUpResolve byte = 0
	ipcVariantBottomUpExec    byte = 1
	ipcVariantTopDownProposal byte = 2
)

// DecodeChainMessage implements the Bytes layer's inbound decode (spec
// §4.H): a length-prefixed tuple encoding with a leading variant byte.
// This repo's wire format is intentionally minimal since the VM's actual
// message codec is out of scope (§1); it exists only so every layer above
// it has a concrete ChainMessage to multiplex on.
func DecodeChainMessage(raw []byte) (chainmsg.ChainMessage, error) {
	if len(raw) < 1 {
		return chainmsg.ChainMessage{}, fmt.Errorf("%w: empty message", ErrDecode)
	}
	switch raw[0] {
	case variantSigned:
		sm, err := decodeSignedMessage(raw[1:])
		if err != nil {
			return chainmsg.ChainMessage{}, fmt.Errorf("%w: signed message: %v", ErrDecode, err)
		}
		return chainmsg.ChainMessage{Signed: &sm}, nil
	case variantIpc:
		ipc, err := decodeIpcMessage(raw[1:])
		if err != nil {
			return chainmsg.ChainMessage{}, fmt.Errorf("%w: ipc message: %v", ErrDecode, err)
		}
		return chainmsg.ChainMessage{Ipc: ipc}, nil
	default:
		return chainmsg.ChainMessage{}, fmt.Errorf("%w: unknown variant %d", ErrDecode, raw[0])
	}
}

func decodeSignedMessage(b []byte) (chainmsg.SignedMessage, error) {
	f := newFieldReader(b)
	from, err := f.bytes()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	to, err := f.bytes()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	nonce, err := f.uint64()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	value, err := f.bytes()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	gasLimit, err := f.uint64()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	method, err := f.uint64()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	params, err := f.bytes()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	sig, err := f.bytes()
	if err != nil {
		return chainmsg.SignedMessage{}, err
	}
	return chainmsg.SignedMessage{
		Message: chainmsg.VMMessage{
			From: from, To: to, Nonce: nonce, Value: value,
			GasLimit: gasLimit, Method: method, Params: params,
		},
		Signature: sig,
	}, nil
}

func decodeIpcMessage(b []byte) (*chainmsg.IpcMessage, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("empty ipc payload")
	}
	switch b[0] {
	case ipcVariantTopDownProposal:
		f := newFieldReader(b[1:])
		h, err := f.uint64()
		if err != nil {
			return nil, err
		}
		bh, err := f.bytes32()
		if err != nil {
			return nil, err
		}
		return &chainmsg.IpcMessage{TopDownProposal: &finality.ParentFinality{Height: h, BlockHash: bh}}, nil
	case ipcVariantBottomUpExec:
		f := newFieldReader(b[1:])
		cert, err := decodeCertifiedCheckpoint(f)
		if err != nil {
			return nil, err
		}
		return &chainmsg.IpcMessage{BottomUpExec: cert}, nil
	case ipcVariantBottomUpResolve:
		f := newFieldReader(b[1:])
		cert, err := decodeCertifiedCheckpoint(f)
		if err != nil {
			return nil, err
		}
		sig, err := f.bytes()
		if err != nil {
			return nil, err
		}
		relayer, err := f.bytes()
		if err != nil {
			return nil, err
		}
		return &chainmsg.IpcMessage{BottomUpResolve: &chainmsg.SignedRelayed[chainmsg.Certified[chainmsg.Checkpoint]]{
			Value:     *cert,
			Signature: sig,
			Relayer:   relayer,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown ipc variant %d", b[0])
	}
}

// decodeCertifiedCheckpoint decodes the minimal Certified[Checkpoint]
// encoding this repo uses on the wire (subnet_id, block_height, block_hash,
// next_configuration_number, cross_messages_hash, cert) — the real quorum
// certificate's aggregation format belongs to the VM/gateway actor (§1);
// only its opaque bytes are carried here.
func decodeCertifiedCheckpoint(f *fieldReader) (*chainmsg.Certified[chainmsg.Checkpoint], error) {
	subnetID, err := f.bytes()
	if err != nil {
		return nil, err
	}
	height, err := f.uint64()
	if err != nil {
		return nil, err
	}
	blockHash, err := f.bytes32()
	if err != nil {
		return nil, err
	}
	nextConfig, err := f.uint64()
	if err != nil {
		return nil, err
	}
	xmsgHash, err := f.bytes32()
	if err != nil {
		return nil, err
	}
	cert, err := f.bytes()
	if err != nil {
		return nil, err
	}
	return &chainmsg.Certified[chainmsg.Checkpoint]{
		Value: chainmsg.Checkpoint{
			SubnetID:                subnetID,
			BlockHeight:             height,
			BlockHash:               blockHash,
			NextConfigurationNumber: nextConfig,
			CrossMessagesHash:       xmsgHash,
		},
		Cert: cert,
	}, nil
}

func encodeCertifiedCheckpoint(variant byte, cert chainmsg.Certified[chainmsg.Checkpoint]) []byte {
	out := []byte{variantIpc, variant}
	out = appendLenPrefixed(out, cert.Value.SubnetID)
	heightBuf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		heightBuf[7-i] = byte(cert.Value.BlockHeight >> (8 * i))
	}
	out = append(out, heightBuf...)
	out = appendLenPrefixed(out, cert.Value.BlockHash[:])
	cfgBuf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		cfgBuf[7-i] = byte(cert.Value.NextConfigurationNumber >> (8 * i))
	}
	out = append(out, cfgBuf...)
	out = appendLenPrefixed(out, cert.Value.CrossMessagesHash[:])
	out = appendLenPrefixed(out, cert.Cert)
	return out
}

type fieldReader struct {
	b   []byte
	off int
}

func newFieldReader(b []byte) *fieldReader { return &fieldReader{b: b} }

func (f *fieldReader) bytes() ([]byte, error) {
	if f.off+4 > len(f.b) {
		return nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(f.b[f.off : f.off+4])
	f.off += 4
	if f.off+int(n) > len(f.b) {
		return nil, fmt.Errorf("truncated field")
	}
	out := f.b[f.off : f.off+int(n)]
	f.off += int(n)
	if n == 0 {
		return nil, nil
	}
	return append([]byte{}, out...), nil
}

func (f *fieldReader) bytes32() ([32]byte, error) {
	var out [32]byte
	b, err := f.bytes()
	if err != nil {
		return out, err
	}
	copy(out[32-len(b):], b)
	return out, nil
}

func (f *fieldReader) uint64() (uint64, error) {
	if f.off+8 > len(f.b) {
		return 0, fmt.Errorf("truncated uint64")
	}
	v := binary.BigEndian.Uint64(f.b[f.off : f.off+8])
	f.off += 8
	return v, nil
}
