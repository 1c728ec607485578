package genesis

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/consensus-shipyard/fendermint-sub000/common"
)

// decodeBinary parses the deterministic binary genesis encoding (spec §6:
// fallback when the document is not valid JSON). The layout is a flat,
// length-prefixed field sequence mirroring the JSON struct order, so a
// binary genesis round-trips through the same Genesis type with no
// separate schema to maintain.
func decodeBinary(raw []byte) (*Genesis, error) {
	r := bytes.NewReader(raw)
	g := &Genesis{}

	name, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("chain_name: %w", err)
	}
	g.ChainName = string(name)

	if g.Timestamp, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &g.NetworkVersion); err != nil {
		return nil, fmt.Errorf("network_version: %w", err)
	}
	if g.BaseFee, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("base_fee: %w", err)
	}
	var scale uint8
	if err = binary.Read(r, binary.BigEndian, &scale); err != nil {
		return nil, fmt.Errorf("power_scale: %w", err)
	}
	g.PowerScale = PowerScale(scale)

	var numValidators uint32
	if err = binary.Read(r, binary.BigEndian, &numValidators); err != nil {
		return nil, fmt.Errorf("validators length: %w", err)
	}
	for i := uint32(0); i < numValidators; i++ {
		pk, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("validator %d public_key: %w", i, err)
		}
		var power uint64
		if err = binary.Read(r, binary.BigEndian, &power); err != nil {
			return nil, fmt.Errorf("validator %d power: %w", i, err)
		}
		g.Validators = append(g.Validators, Validator{PublicKey: pk, Power: power})
	}

	var numAccounts uint32
	if err = binary.Read(r, binary.BigEndian, &numAccounts); err != nil {
		return nil, fmt.Errorf("accounts length: %w", err)
	}
	for i := uint32(0); i < numAccounts; i++ {
		alloc, err := readAccountAllocation(r)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		g.Accounts = append(g.Accounts, alloc)
	}

	var hasIPC uint8
	if err = binary.Read(r, binary.BigEndian, &hasIPC); err != nil {
		return nil, fmt.Errorf("ipc flag: %w", err)
	}
	if hasIPC != 0 {
		gw, err := readGateway(r)
		if err != nil {
			return nil, fmt.Errorf("ipc.gateway: %w", err)
		}
		g.IPC = &IPC{Gateway: gw}
	}

	return g, nil
}

func readAccountAllocation(r *bytes.Reader) (AccountAllocation, error) {
	var kind uint8
	if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
		return AccountAllocation{}, err
	}
	switch kind {
	case 0:
		owner, err := readNativeAddress(r)
		if err != nil {
			return AccountAllocation{}, err
		}
		balance, err := readBytes(r)
		if err != nil {
			return AccountAllocation{}, err
		}
		return AccountAllocation{Account: &Account{Owner: owner, Balance: balance}}, nil
	case 1:
		var numSigners uint32
		if err := binary.Read(r, binary.BigEndian, &numSigners); err != nil {
			return AccountAllocation{}, err
		}
		signers := make([]common.NativeAddress, 0, numSigners)
		for i := uint32(0); i < numSigners; i++ {
			a, err := readNativeAddress(r)
			if err != nil {
				return AccountAllocation{}, err
			}
			signers = append(signers, a)
		}
		var threshold, vestingStart, vestingDuration uint64
		if err := binary.Read(r, binary.BigEndian, &threshold); err != nil {
			return AccountAllocation{}, err
		}
		balance, err := readBytes(r)
		if err != nil {
			return AccountAllocation{}, err
		}
		if err := binary.Read(r, binary.BigEndian, &vestingStart); err != nil {
			return AccountAllocation{}, err
		}
		if err := binary.Read(r, binary.BigEndian, &vestingDuration); err != nil {
			return AccountAllocation{}, err
		}
		return AccountAllocation{Multisig: &Multisig{
			Signers:         signers,
			Threshold:       threshold,
			Balance:         balance,
			VestingStart:    vestingStart,
			VestingDuration: vestingDuration,
		}}, nil
	default:
		return AccountAllocation{}, fmt.Errorf("unknown account allocation kind %d", kind)
	}
}

func readGateway(r *bytes.Reader) (*Gateway, error) {
	gw := &Gateway{}
	var err error
	if gw.SubnetID, err = readBytes(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &gw.BottomUpCheckPeriod); err != nil {
		return nil, err
	}
	if gw.MsgFee, err = readBytes(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &gw.MajorityPercentage); err != nil {
		return nil, err
	}
	if gw.MinCollateral, err = readBytes(r); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &gw.ActiveValidatorsLimit); err != nil {
		return nil, err
	}
	return gw, nil
}

func readNativeAddress(r *bytes.Reader) (common.NativeAddress, error) {
	protocol, err := r.ReadByte()
	if err != nil {
		return common.NativeAddress{}, err
	}
	payload, err := readBytes(r)
	if err != nil {
		return common.NativeAddress{}, err
	}
	return common.NativeAddress{Protocol: protocol, Payload: payload}, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
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

func readInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
