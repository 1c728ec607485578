// Package chainmsg implements the ChainMessage variant hierarchy (spec
// §3/§4.H) and the deterministic content-addressing codec used to derive
// the "cid_bytes()" pre-image term that the signed-message layer (§4.G)
// binds into both signing schemes.
//
// The original source computes cid_bytes() as a full IPLD/CBOR CID. No
// CBOR or IPLD library exists anywhere in the retrieved corpus, so this
// port represents it as a length-prefixed deterministic encoding of the
// message's fields followed by a BLAKE2b-256 digest — same binding
// property (any two distinct messages produce distinct bytes), simpler
// construction. See DESIGN.md for the full justification.
package chainmsg

import (
	"encoding/binary"

	"github.com/consensus-shipyard/fendermint-sub000/crypto/blake2b"
	"github.com/consensus-shipyard/fendermint-sub000/ipc/finality"
)

// VMMessage is the deterministic-VM-level message a SignedMessage carries.
// The VM itself is an external collaborator (§1); this is only the part
// of its shape the signing/CID layer must see.
type VMMessage struct {
	From     []byte // sender native address bytes (protocol || payload)
	To       []byte
	Nonce    uint64
	Value    []byte // big-endian token amount
	GasLimit uint64
	Method   uint64
	Params   []byte
}

// Bytes is a deterministic, order-preserving encoding of m, used both as
// the CID pre-image and as a canonical wire form for tests and logging.
func (m VMMessage) Bytes() []byte {
	var buf []byte
	buf = appendBytesField(buf, m.From)
	buf = appendBytesField(buf, m.To)
	buf = appendUint64Field(buf, m.Nonce)
	buf = appendBytesField(buf, m.Value)
	buf = appendUint64Field(buf, m.GasLimit)
	buf = appendUint64Field(buf, m.Method)
	buf = appendBytesField(buf, m.Params)
	return buf
}

func appendBytesField(buf, field []byte) []byte {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func appendUint64Field(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// CIDBytes is the simplified content-address of m (see package doc):
// BLAKE2b-256 of its canonical encoding.
func CIDBytes(m VMMessage) [32]byte {
	return blake2b.Sum256(m.Bytes())
}

// SignedMessage pairs a VMMessage with its signature (spec §3). The
// signature's meaning is defined entirely by the sigs package; this type
// only carries the bytes.
type SignedMessage struct {
	Message   VMMessage
	Signature []byte
}

// Checkpoint is the bottom-up checkpoint payload a Certified[Checkpoint]
// carries (spec §3/§4.F), referenced here only by shape so chainmsg can
// define IpcMessage without importing the checkpoint package (which in
// turn imports chainmsg for the signed-message layer).
type Checkpoint struct {
	SubnetID                []byte
	BlockHeight              uint64
	BlockHash               [32]byte
	NextConfigurationNumber uint64
	CrossMessagesHash       [32]byte
}

// Certified wraps a value with the quorum certificate (aggregated
// signatures over it) that makes it admissible on-chain. The certificate
// format itself belongs to the checkpoint engine (§4.F); chainmsg only
// needs to carry it opaquely.
type Certified[T any] struct {
	Value T
	Cert  []byte
}

// SignedRelayed wraps a value with the relaying user's own signature —
// the envelope a BottomUpResolve message arrives in from a user (spec §3).
type SignedRelayed[T any] struct {
	Value     T
	Signature []byte
	Relayer   []byte // native address bytes of the relaying account
}

// IpcMessage is the non-user-originated half of ChainMessage (spec §3).
// BottomUpExec and TopDownProposal may only appear in validator-proposed
// blocks; BottomUpResolve may originate from users.
type IpcMessage struct {
	BottomUpResolve *SignedRelayed[Certified[Checkpoint]]
	BottomUpExec    *Certified[Checkpoint]
	TopDownProposal *finality.ParentFinality
}

// Kind reports which IpcMessage variant is populated, for dispatch in the
// interpreter's chain layer (§4.H).
func (m IpcMessage) Kind() string {
	switch {
	case m.BottomUpResolve != nil:
		return "bottom_up_resolve"
	case m.BottomUpExec != nil:
		return "bottom_up_exec"
	case m.TopDownProposal != nil:
		return "top_down_proposal"
	default:
		return "invalid"
	}
}

// ChainMessage is the top-level message variant the bytes layer decodes
// into (spec §3): either a user-signed VM message, or one of the three
// IPC-internal variants.
type ChainMessage struct {
	Signed *SignedMessage
	Ipc    *IpcMessage
}

func (m ChainMessage) Kind() string {
	if m.Signed != nil {
		return "signed"
	}
	if m.Ipc != nil {
		return "ipc:" + m.Ipc.Kind()
	}
	return "invalid"
}

// OriginatesFromUser reports whether m may legally appear in a message a
// user submitted directly, as opposed to only in a validator-proposed
// block (spec §3: "Only Signed and BottomUpResolve may originate from
// users; the others may only appear in validator-proposed blocks.").
func (m ChainMessage) OriginatesFromUser() bool {
	if m.Signed != nil {
		return true
	}
	if m.Ipc != nil && m.Ipc.BottomUpResolve != nil {
		return true
	}
	return false
}
