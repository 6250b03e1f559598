// Package config is the single place FlowSwap's LP parameters are
// defined: the pair table, BTC confirmation tiers, rate-refresh
// interval, auto-claim/auto-refund toggles, and LP identity. Nothing
// outside this package should hardcode a spread, a confirmation
// requirement, or a timelock safety margin.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/flowswap/lp-node/internal/model"
)

// ConfirmationTier maps a from-amount ceiling (in the from-asset's
// smallest unit) to a required confirmation count.
type ConfirmationTier struct {
	MaxAmount     uint64 `yaml:"max_amount"`
	Confirmations uint32 `yaml:"confirmations"`
}

// PairConfig holds the trading parameters for one asset pair.
type PairConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SpreadBps   int64  `yaml:"spread_bps"` // basis points taken from the quoted rate
	MinAmount   uint64 `yaml:"min_amount"`
	MaxAmount   uint64 `yaml:"max_amount"`
}

// SafetyMargins are the minimum per-chain gaps between adjacent legs'
// timelocks, so each leg's refund window closes well before the leg
// that funded it.
type SafetyMargins struct {
	BTCBlocks  uint64 `yaml:"btc_blocks"`
	M1Blocks   uint64 `yaml:"m1_blocks"`
	EVMSeconds uint64 `yaml:"evm_seconds"`
}

// ReorgDepths are how many blocks back each watcher re-scans on
// restart to tolerate a chain reorganization.
type ReorgDepths struct {
	BTCBlocks uint64 `yaml:"btc_blocks"`
	M1Blocks  uint64 `yaml:"m1_blocks"`
	EVMBlocks uint64 `yaml:"evm_blocks"`
}

// LPConfig is the root, read-only-to-the-engine configuration document.
type LPConfig struct {
	LPID   string `yaml:"lp_id"`
	LPName string `yaml:"lp_name"`

	Pairs map[string]PairConfig `yaml:"pairs"`

	ConfirmationTiers []ConfirmationTier `yaml:"confirmation_tiers"`
	M1Confirmations   uint32             `yaml:"m1_confirmations"`
	EVMConfirmations  uint32             `yaml:"evm_confirmations"`

	SafetyMargins SafetyMargins `yaml:"safety_margins"`
	ReorgDepths   ReorgDepths   `yaml:"reorg_depths"`

	RateRefreshInterval time.Duration `yaml:"rate_refresh_interval"`
	AutoClaimEnabled    bool          `yaml:"auto_claim_enabled"`
	AutoRefundEnabled   bool          `yaml:"auto_refund_enabled"`

	ArchiveGracePeriod time.Duration `yaml:"archive_grace_period"`

	mu sync.RWMutex
}

// Default returns a conservative starting configuration: size-tiered
// BTC confirmation requirements, 144/144/3600 safety margins, and
// 12/24/32 reorg depths.
func Default() *LPConfig {
	return &LPConfig{
		LPName: "flowswap-lp",
		Pairs: map[string]PairConfig{
			string(model.AssetBTC) + "/" + string(model.AssetUSDC): {
				Enabled:   true,
				SpreadBps: 50,
				MinAmount: 10_000,
				MaxAmount: 0,
			},
		},
		ConfirmationTiers: []ConfirmationTier{
			{MaxAmount: 1_000_000, Confirmations: 1},   // <= 0.01 BTC
			{MaxAmount: 10_000_000, Confirmations: 2},  // <= 0.1 BTC
			{MaxAmount: 50_000_000, Confirmations: 3},  // <= 0.5 BTC
			{MaxAmount: 0, Confirmations: 6},            // anything larger
		},
		M1Confirmations:  1,
		EVMConfirmations: 1,
		SafetyMargins: SafetyMargins{
			BTCBlocks:  144,
			M1Blocks:   144,
			EVMSeconds: 3600,
		},
		ReorgDepths: ReorgDepths{
			BTCBlocks: 12,
			M1Blocks:  24,
			EVMBlocks: 32,
		},
		RateRefreshInterval: 60 * time.Second,
		AutoClaimEnabled:    true,
		AutoRefundEnabled:   true,
		ArchiveGracePeriod:  24 * time.Hour,
	}
}

// Load reads a YAML config file at path, falling back to Default() for
// any field left zero. No field is taken from the environment: neither
// Load nor its caller reads LP_ID, LP_NAME, PORT or LP_FLOWSWAP_DB, even
// after LoadEnv has placed a .env file's values in the process
// environment.
func Load(path string) (*LPConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads a .env file (if present) into the process environment.
// A missing file is not an error; godotenv.Load already treats it that
// way, but we swallow the error explicitly so callers don't need to
// special-case "no .env in production."
func LoadEnv(path string) {
	_ = godotenv.Load(path)
}

// ConfirmationsFor returns the required confirmation count for a BTC
// deposit of the given amount, per the size-tier table. Tiers are
// evaluated in order; a tier with MaxAmount == 0 matches everything
// (the catch-all, last-tier default).
func (c *LPConfig) ConfirmationsFor(amount uint64) uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tier := range c.ConfirmationTiers {
		if tier.MaxAmount == 0 || amount <= tier.MaxAmount {
			return tier.Confirmations
		}
	}
	return 6
}

// Pair returns the pair config for "FROM/TO", and whether it is enabled.
func (c *LPConfig) Pair(from, to model.Asset) (PairConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.Pairs[string(from)+"/"+string(to)]
	return p, ok && p.Enabled
}

// Snapshot returns a value copy of the safety margins, read-only to
// every caller (the engine never mutates config at transition time).
func (c *LPConfig) Snapshot() SafetyMargins {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SafetyMargins
}

// Update atomically replaces the pair table and toggles. The engine
// never calls this mid-transition; it exists for the operator-facing
// admin surface.
func (c *LPConfig) Update(fn func(*LPConfig)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
