package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConvertArgs turns textual constructor arguments into the Go values abi packing expects.
func ConvertArgs(inputs abi.Arguments, args []string) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("constructor takes %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := convertArg(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, input.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func convertArg(t abi.Type, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch t.T {
	case abi.AddressTy:
		return ParseAddress(s)
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return raw, nil
	case abi.UintTy:
		return convertUint(t.Size, s)
	case abi.IntTy:
		return convertInt(t.Size, s)
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported constructor argument type %s", t.String())
	}
}

func convertUint(size int, s string) (any, error) {
	switch size {
	case 8, 16, 32, 64:
		n, err := strconv.ParseUint(s, 0, size)
		if err != nil {
			return nil, err
		}
		switch size {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		default:
			return n, nil
		}
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if n.Sign() < 0 || n.BitLen() > size {
		return nil, fmt.Errorf("%s overflows uint%d", s, size)
	}
	return n, nil
}

func convertInt(size int, s string) (any, error) {
	switch size {
	case 8, 16, 32, 64:
		n, err := strconv.ParseInt(s, 0, size)
		if err != nil {
			return nil, err
		}
		switch size {
		case 8:
			return int8(n), nil
		case 16:
			return int16(n), nil
		case 32:
			return int32(n), nil
		default:
			return n, nil
		}
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	bound := n
	if n.Sign() < 0 {
		bound = new(big.Int).Add(n, big.NewInt(1))
	}
	if bound.BitLen() > size-1 {
		return nil, fmt.Errorf("%s overflows int%d", s, size)
	}
	return n, nil
}

// EncodeConstructorArgs ABI-encodes args for the artifact's constructor as bare hex.
func EncodeConstructorArgs(art *Artifact, args []string) (string, error) {
	params, err := ConvertArgs(art.ABI.Constructor.Inputs, args)
	if err != nil {
		return "", err
	}
	if len(params) == 0 {
		return "", nil
	}
	packed, err := art.ABI.Constructor.Inputs.Pack(params...)
	if err != nil {
		return "", fmt.Errorf("encode constructor arguments: %w", err)
	}
	return hex.EncodeToString(packed), nil
}
