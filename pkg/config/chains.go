// Copyright 2025 Certen Protocol
//
// Chain-list YAML override loader, the same "load environment-sensible
// defaults, then let an optional YAML file override individual fields"
// shape as pkg/config/anchor_config.go, simplified to the one thing
// spec.md section 6 needs overridden per deployment: contract addresses
// and RPC URLs per chain.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// chainsFile is the on-disk shape of CHAINS_CONFIG_FILE: a map of chain id
// (as a YAML string key) to the subset of ChainConfig an operator may
// override without a code change or redeploy.
type chainsFile struct {
	Chains map[string]chainOverride `yaml:"chains"`
}

type chainOverride struct {
	RPCURL               string `yaml:"rpc_url"`
	JobMarketplace       string `yaml:"job_marketplace"`
	NodeRegistry         string `yaml:"node_registry"`
	PaymentEscrow        string `yaml:"payment_escrow"`
	HostEarnings         string `yaml:"host_earnings"`
	ModelRegistry        string `yaml:"model_registry"`
	ConfirmationBlocks   uint64 `yaml:"confirmation_blocks"`
	GasMultiplierPercent uint64 `yaml:"gas_multiplier_percent"`
}

// applyChainsOverride merges path's YAML contents onto the env-var-derived
// chain registry. Only non-zero-value fields in the file override the
// existing configuration entry; a chain id present in the file but not
// already configured is rejected, since spec.md fixes the supported set
// (Base Sepolia, opBNB Testnet) and an override file typo should not
// silently add an unsupported chain.
func applyChainsOverride(path string, chains map[uint64]*ChainConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read chains config file: %w", err)
	}

	var file chainsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse chains config file: %w", err)
	}

	for idStr, override := range file.Chains {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return fmt.Errorf("chains config file: invalid chain id %q", idStr)
		}
		chain, ok := chains[id]
		if !ok {
			return fmt.Errorf("chains config file: chain %d is not a configured chain", id)
		}
		if override.RPCURL != "" {
			chain.RPCURL = override.RPCURL
		}
		if override.JobMarketplace != "" {
			chain.JobMarketplace = override.JobMarketplace
		}
		if override.NodeRegistry != "" {
			chain.NodeRegistry = override.NodeRegistry
		}
		if override.PaymentEscrow != "" {
			chain.PaymentEscrow = override.PaymentEscrow
		}
		if override.HostEarnings != "" {
			chain.HostEarnings = override.HostEarnings
		}
		if override.ModelRegistry != "" {
			chain.ModelRegistry = override.ModelRegistry
		}
		if override.ConfirmationBlocks != 0 {
			chain.ConfirmationBlocks = override.ConfirmationBlocks
		}
		if override.GasMultiplierPercent != 0 {
			chain.GasMultiplierPercent = override.GasMultiplierPercent
		}
	}
	return nil
}
