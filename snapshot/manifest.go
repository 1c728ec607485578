package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

// encode renders the manifest as a flat length-prefixed field sequence,
// the same minimal deterministic tuple convention used by genesis's
// binary fallback and the interpreter's chain-message wire format —
// chosen for the same reason: no third-party structured-data codec in
// the corpus is a better fit for a small, fixed-shape record than a
// hand-rolled length-prefixed encoding would be.
func (m Manifest) encode() ([]byte, error) {
	var buf []byte
	buf = appendUint64(buf, m.Height)
	buf = append(buf, m.StateRoot[:]...)
	buf = appendLenPrefixed(buf, m.Params)
	buf = appendUint64(buf, uint64(m.NumParts))
	buf = appendLenPrefixed(buf, []byte(m.Checksum))
	return buf, nil
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

// DecodeManifest parses the bytes encode produced.
func DecodeManifest(raw []byte) (Manifest, error) {
	r := bytes.NewReader(raw)
	var m Manifest

	var height uint64
	if err := binary.Read(r, binary.BigEndian, &height); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: manifest height: %w", err)
	}
	m.Height = common.Height(height)

	var root common.Hash
	if _, err := r.Read(root[:]); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: manifest state root: %w", err)
	}
	m.StateRoot = root

	params, err := readLenPrefixed(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: manifest params: %w", err)
	}
	m.Params = params

	var numParts uint64
	if err := binary.Read(r, binary.BigEndian, &numParts); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: manifest num_parts: %w", err)
	}
	m.NumParts = int(numParts)

	checksum, err := readLenPrefixed(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: manifest checksum: %w", err)
	}
	m.Checksum = string(checksum)

	return m, nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
