package genesis

import (
	"encoding/json"
	"testing"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

func TestDecodeJSON(t *testing.T) {
	doc := map[string]any{
		"chain_name":      "test-subnet",
		"timestamp":       100,
		"network_version": 18,
		"base_fee":        []byte{1},
		"power_scale":     0,
		"validators":      []map[string]any{{"public_key": []byte{1, 2, 3}, "power": 10}},
		"accounts": []map[string]any{
			{"account": map[string]any{"owner": map[string]any{"Protocol": 1, "Payload": []byte{1}}, "balance": []byte{5}}},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	g, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.ChainName != "test-subnet" {
		t.Fatalf("chain_name = %q", g.ChainName)
	}
	if len(g.Validators) != 1 || g.Validators[0].Power != 10 {
		t.Fatalf("validators = %+v", g.Validators)
	}
	if len(g.Accounts) != 1 || g.Accounts[0].Account == nil {
		t.Fatalf("accounts = %+v", g.Accounts)
	}
}

func TestDecodeRejectsMissingChainName(t *testing.T) {
	raw := []byte(`{"power_scale":0,"validators":[{"public_key":"AQ==","power":1}]}`)
	if _, err := Decode(raw); err != ErrMissingChainName {
		t.Fatalf("expected ErrMissingChainName, got %v", err)
	}
}

func TestDecodeRejectsInvalidPowerScale(t *testing.T) {
	raw := []byte(`{"chain_name":"x","power_scale":2,"validators":[{"public_key":"AQ==","power":1}]}`)
	if _, err := Decode(raw); err != ErrInvalidPowerScale {
		t.Fatalf("expected ErrInvalidPowerScale, got %v", err)
	}
}

func TestDecodeRejectsEmptyValidators(t *testing.T) {
	raw := []byte(`{"chain_name":"x","power_scale":0}`)
	if _, err := Decode(raw); err != ErrEmptyValidators {
		t.Fatalf("expected ErrEmptyValidators, got %v", err)
	}
}

func TestDecodeRejectsAmbiguousAccountAllocation(t *testing.T) {
	raw := []byte(`{
		"chain_name":"x","power_scale":0,
		"validators":[{"public_key":"AQ==","power":1}],
		"accounts":[{}]
	}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected an error for an accounts[] entry with neither account nor multisig set")
	}
}

func TestChainIDIsDeterministicAndNameSensitive(t *testing.T) {
	a := ChainID("subnet-a")
	b := ChainID("subnet-b")
	if a == b {
		t.Fatal("expected distinct chain names to produce distinct chain ids")
	}
	if ChainID("subnet-a") != a {
		t.Fatal("expected ChainID to be deterministic for the same chain name")
	}
}

func TestDecodeBinaryRoundTrip(t *testing.T) {
	// Hand-assemble a minimal binary genesis matching decodeBinary's field
	// order, then confirm Decode falls back to it when the bytes are not
	// valid JSON.
	var buf []byte
	buf = append(buf, encLenPrefixed([]byte("bin-subnet"))...)
	buf = append(buf, encInt64(42)...)
	buf = append(buf, encUint64AsUint64(7)...)
	buf = append(buf, encLenPrefixed([]byte{0xaa})...)
	buf = append(buf, 0) // power_scale = 0
	buf = append(buf, encUint32(1)...)
	buf = append(buf, encLenPrefixed([]byte{1, 2, 3})...)
	buf = append(buf, encUint64AsUint64(100)...)
	buf = append(buf, encUint32(0)...) // zero accounts
	buf = append(buf, 0)               // no ipc block

	g, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode binary: %v", err)
	}
	if g.ChainName != "bin-subnet" {
		t.Fatalf("chain_name = %q", g.ChainName)
	}
	if len(g.Validators) != 1 || g.Validators[0].Power != 100 {
		t.Fatalf("validators = %+v", g.Validators)
	}
	if g.IPC != nil {
		t.Fatal("expected no ipc block")
	}
	_ = common.Height(0)
}

func encLenPrefixed(b []byte) []byte {
	n := len(b)
	out := encUint32(uint32(n))
	return append(out, b...)
}

func encUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func encInt64(v int64) []byte {
	return encUint64AsUint64(uint64(v))
}

func encUint64AsUint64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}
