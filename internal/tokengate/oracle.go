// Package tokengate answers one question: does a wallet hold the minimum
// balance of the platform token. The answer drives fee selection only;
// callers treat any failure here as "not a holder".
package tokengate

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// HolderCheck is the outcome of a minimum-balance query.
type HolderCheck struct {
	IsHolder        bool
	Balance         decimal.Decimal
	MinimumRequired decimal.Decimal
	Address         string
}

// Oracle abstracts the on-chain balance reader.
type Oracle interface {
	CheckHolder(ctx context.Context, address string) (HolderCheck, error)
}

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// EthOracle reads balanceOf from the configured ERC-20 contract.
type EthOracle struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	decimals int32
	minUnits decimal.Decimal
}

type EthOracleConfig struct {
	RPCURL          string
	TokenContract   string
	MinBalanceUnits int64
}

func NewEthOracle(ctx context.Context, cfg EthOracleConfig) (*EthOracle, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("invalid token contract address: %s", cfg.TokenContract)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.TokenContract)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	o := &EthOracle{
		client:   cli,
		contract: bound,
		decimals: 18,
		minUnits: decimal.NewFromInt(cfg.MinBalanceUnits),
	}

	// Best effort: tokens without a decimals() view fall back to 18.
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err == nil && len(out) == 1 {
		if d, ok := out[0].(uint8); ok {
			o.decimals = int32(d)
		}
	}

	return o, nil
}

// CheckHolder reads the wallet's token balance and compares it against the
// configured minimum, expressed in whole token units.
func (o *EthOracle) CheckHolder(ctx context.Context, address string) (HolderCheck, error) {
	if !common.IsHexAddress(address) {
		return HolderCheck{}, fmt.Errorf("invalid wallet address: %s", address)
	}
	wallet := common.HexToAddress(address)

	var out []interface{}
	if err := o.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", wallet); err != nil {
		return HolderCheck{}, fmt.Errorf("read balance: %w", err)
	}
	raw := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	balance := decimal.NewFromBigInt(raw, -o.decimals)
	return HolderCheck{
		IsHolder:        balance.GreaterThanOrEqual(o.minUnits),
		Balance:         balance,
		MinimumRequired: o.minUnits,
		Address:         wallet.Hex(),
	}, nil
}

// Ping verifies the RPC endpoint is reachable.
func (o *EthOracle) Ping(ctx context.Context) error {
	if o.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := o.client.BlockNumber(ctx)
	return err
}
