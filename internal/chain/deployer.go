package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/voltage-labs/contractctl/internal/logging"
)

// Backend is the subset of an Ethereum client needed to deploy and confirm contracts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// DeployerOptions configures a Deployer.
type DeployerOptions struct {
	Identity  *Identity
	Artifacts *Artifacts
	// ChainID is the expected chain; zero accepts whatever the RPC endpoint reports.
	ChainID int64
	// Timeout bounds a single deployment including confirmation.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Deployer submits contract creation transactions and waits for them to be mined.
type Deployer struct {
	backend   Backend
	closer    func()
	identity  *Identity
	artifacts *Artifacts
	chainID   *big.Int
	timeout   time.Duration
	logger    *slog.Logger
}

// Dial connects to rpcURL and returns a Deployer bound to it.
func Dial(ctx context.Context, rpcURL string, opts DeployerOptions) (*Deployer, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	d, err := NewDeployer(ctx, client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	d.closer = client.Close
	return d, nil
}

// NewDeployer wraps an existing backend, checking that it serves the expected chain.
func NewDeployer(ctx context.Context, backend Backend, opts DeployerOptions) (*Deployer, error) {
	if opts.Identity == nil {
		return nil, fmt.Errorf("deployer identity is required")
	}
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("artifacts loader is required")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if opts.ChainID != 0 && chainID.Int64() != opts.ChainID {
		return nil, fmt.Errorf("rpc endpoint serves chain %s, expected %d", chainID, opts.ChainID)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Deployer{
		backend:   backend,
		identity:  opts.Identity,
		artifacts: opts.Artifacts,
		chainID:   chainID,
		timeout:   opts.Timeout,
		logger:    logger,
	}, nil
}

// ChainID returns the chain the deployer is connected to.
func (d *Deployer) ChainID() *big.Int {
	return new(big.Int).Set(d.chainID)
}

// Deploy creates contract with the given constructor arguments and returns its address.
// The call is not retried; a failure leaves no record behind.
func (d *Deployer) Deploy(ctx context.Context, contract string, args []string) (string, error) {
	art, err := d.artifacts.Load(contract)
	if err != nil {
		return "", err
	}
	params, err := ConvertArgs(art.ABI.Constructor.Inputs, args)
	if err != nil {
		return "", err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	auth, err := bind.NewKeyedTransactorWithChainID(d.identity.key, d.chainID)
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx

	addr, tx, _, err := bind.DeployContract(auth, art.ABI, art.Bytecode, d.backend, params...)
	if err != nil {
		return "", fmt.Errorf("send deployment of %s: %w", contract, err)
	}
	d.logger.Info("deployment submitted", "contract", contract, "tx", tx.Hash().Hex(), "address", addr.Hex())

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return "", fmt.Errorf("wait for %s deployment: %w", contract, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%s deployment reverted: %s", contract, receipt.TxHash.Hex())
	}
	if receipt.ContractAddress != addr {
		return "", fmt.Errorf("%s deployed at %s, expected %s", contract, receipt.ContractAddress.Hex(), addr.Hex())
	}

	code, err := d.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return "", fmt.Errorf("read code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return "", fmt.Errorf("no code at %s after deploying %s", addr.Hex(), contract)
	}

	d.logger.Debug("deployment mined", "contract", contract, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return addr.Hex(), nil
}

// Close releases the RPC connection when the deployer owns it.
func (d *Deployer) Close() {
	if d.closer != nil {
		d.closer()
	}
}
