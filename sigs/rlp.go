package sigs

// A minimal RLP encoder sized exactly to this package's needs: encoding a
// flat list of uints/byte-strings/nested-lists for the Ethereum-delegated
// signing pre-image (spec §4.G). Grounded on go-ethereum's rlp package
// encoding rules (Ethereum Yellow Paper Appendix B); reimplemented by hand
// here because the pack never retrieved go-ethereum's actual rlp package
// source, only code that consumes it (see DESIGN.md).

// rlpEncodeBytes returns the RLP encoding of a byte string.
func rlpEncodeBytes(data []byte) []byte {
	if len(data) == 1 && data[0] < 0x80 {
		return data
	}
	return append(rlpLengthPrefix(0x80, len(data)), data...)
}

// rlpEncodeUint returns the RLP encoding of x as a minimal big-endian
// byte string (RLP has no native integer type; zero encodes as the empty
// string, per the Yellow Paper).
func rlpEncodeUint(x uint64) []byte {
	if x == 0 {
		return rlpEncodeBytes(nil)
	}
	var b [8]byte
	n := 8
	for n > 0 {
		b[8-n] = byte(x >> (8 * uint(n-1)))
		n--
	}
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return rlpEncodeBytes(b[i:])
}

// rlpEncodeList wraps already-RLP-encoded items as an RLP list.
func rlpEncodeList(items [][]byte) []byte {
	var body []byte
	for _, it := range items {
		body = append(body, it...)
	}
	return append(rlpLengthPrefix(0xc0, len(body)), body...)
}

// rlpLengthPrefix builds the length-prefix byte(s) for a string (base
// 0x80) or list (base 0xc0) payload of the given length.
func rlpLengthPrefix(base byte, length int) []byte {
	if length < 56 {
		return []byte{base + byte(length)}
	}
	lenBytes := minimalBigEndian(uint64(length))
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

func minimalBigEndian(x uint64) []byte {
	var b [8]byte
	n := 8
	for n > 0 {
		b[8-n] = byte(x >> (8 * uint(n-1)))
		n--
	}
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return b[i:]
}
