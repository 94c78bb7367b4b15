// Package chain deploys compiled contracts to an EVM network through go-ethereum.
package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is the signer that authorizes deployment transactions.
type Identity struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// ParsePrivateKey builds an Identity from a hex private key with or without 0x prefix.
func ParsePrivateKey(v string) (*Identity, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if v == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Identity{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

// Hex returns the checksummed signer address.
func (i *Identity) Hex() string {
	return i.Address.Hex()
}

// ParseAddress validates and parses a hex address.
func ParseAddress(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address: %q", v)
	}
	return common.HexToAddress(v), nil
}
