// Copyright 2025 Certen Protocol
//
// Raw ABI encoding for the settlement contract call and model-registry
// read calls, via go-ethereum's bind.BoundContract — the same
// auth/client/WaitMined plumbing pkg/execution/ethereum_contracts.go uses,
// but without generated contract bindings (none exist in this spec's
// contract set, so calls are packed against an inline ABI instead of an
// abigen wrapper type).

package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// settlementABIJSON declares the single function the Settlement Queue
// calls: submitCheckpoint(jobId, chainId, tokenCount, checkpointCid,
// proof, publicInputs) per spec.md section 6's on-chain public inputs.
const settlementABIJSON = `[{
	"type": "function",
	"name": "submitCheckpoint",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "jobId", "type": "uint256"},
		{"name": "chainId", "type": "uint64"},
		{"name": "tokenCount", "type": "uint64"},
		{"name": "checkpointCid", "type": "string"},
		{"name": "proof", "type": "bytes"},
		{"name": "publicInputs", "type": "bytes32[4]"}
	],
	"outputs": []
}]`

// modelRegistryABIJSON declares the read calls the Model Authorizer needs
// against the on-chain model registry, per spec.md section 4.9.
const modelRegistryABIJSON = `[
	{
		"type": "function",
		"name": "modelIdForFilename",
		"stateMutability": "view",
		"inputs": [{"name": "filename", "type": "string"}],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"type": "function",
		"name": "isModelApproved",
		"stateMutability": "view",
		"inputs": [{"name": "modelId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "nodeSupportsModel",
		"stateMutability": "view",
		"inputs": [
			{"name": "nodeAddress", "type": "address"},
			{"name": "modelId", "type": "bytes32"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "expectedModelHash",
		"stateMutability": "view",
		"inputs": [{"name": "modelId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bytes32"}]
	}
]`

var (
	settlementABI    abi.ABI
	modelRegistryABI abi.ABI
)

func init() {
	var err error
	settlementABI, err = abi.JSON(strings.NewReader(settlementABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse settlement abi: %v", err))
	}
	modelRegistryABI, err = abi.JSON(strings.NewReader(modelRegistryABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse model registry abi: %v", err))
	}
}

// SettlementContract binds the job marketplace's submitCheckpoint call.
type SettlementContract struct {
	bound *bind.BoundContract
	eth   *Client
}

// NewSettlementContract binds the settlement entrypoint at contractAddr on
// client's chain.
func NewSettlementContract(client *Client, contractAddr string) *SettlementContract {
	addr := common.HexToAddress(contractAddr)
	bound := bind.NewBoundContract(addr, settlementABI, client.Eth, client.Eth, client.Eth)
	return &SettlementContract{bound: bound, eth: client}
}

// SubmitCheckpoint sends the settlement transaction for one checkpoint,
// using nonce and gasPrice chosen by the caller (the Settlement Queue's
// per-chain worker owns nonce assignment).
func (c *SettlementContract) SubmitCheckpoint(ctx context.Context, auth *bind.TransactOpts, jobID *big.Int, chainID, tokenCount uint64, checkpointCID string, proof []byte, publicInputs [4][32]byte) (*types.Transaction, error) {
	tx, err := c.bound.Transact(auth, "submitCheckpoint", jobID, chainID, tokenCount, checkpointCID, proof, publicInputs)
	if err != nil {
		return nil, fmt.Errorf("submit checkpoint transaction: %w", err)
	}
	return tx, nil
}

// ModelRegistryContract binds the model registry's read-only calls.
type ModelRegistryContract struct {
	bound *bind.BoundContract
}

// NewModelRegistryContract binds the model registry at contractAddr on
// client's chain.
func NewModelRegistryContract(client *Client, contractAddr string) *ModelRegistryContract {
	addr := common.HexToAddress(contractAddr)
	bound := bind.NewBoundContract(addr, modelRegistryABI, client.Eth, client.Eth, client.Eth)
	return &ModelRegistryContract{bound: bound}
}

// ModelIDForFilename resolves a model's basename to its on-chain 32-byte
// model ID, the first step of the Model Authorizer's ordered startup check.
func (c *ModelRegistryContract) ModelIDForFilename(ctx context.Context, filename string) ([32]byte, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.bound.Call(opts, &out, "modelIdForFilename", filename); err != nil {
		return [32]byte{}, fmt.Errorf("call modelIdForFilename: %w", err)
	}
	return out[0].([32]byte), nil
}

// IsModelApproved queries whether modelID is approved for hosting.
func (c *ModelRegistryContract) IsModelApproved(ctx context.Context, modelID [32]byte) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.bound.Call(opts, &out, "isModelApproved", modelID); err != nil {
		return false, fmt.Errorf("call isModelApproved: %w", err)
	}
	return out[0].(bool), nil
}

// NodeSupportsModel queries whether nodeAddress is authorized to serve
// modelID.
func (c *ModelRegistryContract) NodeSupportsModel(ctx context.Context, nodeAddress common.Address, modelID [32]byte) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.bound.Call(opts, &out, "nodeSupportsModel", nodeAddress, modelID); err != nil {
		return false, fmt.Errorf("call nodeSupportsModel: %w", err)
	}
	return out[0].(bool), nil
}

// ExpectedModelHash queries the on-chain expected SHA-256 hash for modelID.
func (c *ModelRegistryContract) ExpectedModelHash(ctx context.Context, modelID [32]byte) ([32]byte, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.bound.Call(opts, &out, "expectedModelHash", modelID); err != nil {
		return [32]byte{}, fmt.Errorf("call expectedModelHash: %w", err)
	}
	return out[0].([32]byte), nil
}
