package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowswap/lp-node/internal/model"
)

func TestDefaultConfirmationTiers(t *testing.T) {
	cfg := Default()

	cases := []struct {
		amount uint64
		want   uint32
	}{
		{500_000, 1},
		{1_000_000, 1},
		{5_000_000, 2},
		{50_000_000, 3},
		{100_000_000, 6},
	}
	for _, c := range cases {
		if got := cfg.ConfirmationsFor(c.amount); got != c.want {
			t.Errorf("ConfirmationsFor(%d) = %d, want %d", c.amount, got, c.want)
		}
	}
}

func TestDefaultSafetyMargins(t *testing.T) {
	cfg := Default()
	m := cfg.Snapshot()
	if m.BTCBlocks != 144 || m.M1Blocks != 144 || m.EVMSeconds != 3600 {
		t.Errorf("unexpected default safety margins: %+v", m)
	}
}

func TestPairLookup(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.Pair(model.AssetBTC, model.AssetUSDC); !ok {
		t.Fatal("expected BTC/USDC pair to be enabled by default")
	}
	if _, ok := cfg.Pair(model.AssetM1, model.AssetUSDC); ok {
		t.Fatal("expected M1/USDC pair to be absent by default")
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LPName != "flowswap-lp" {
		t.Errorf("expected default name, got %q", cfg.LPName)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "lp_id: lp-7\nlp_name: test-lp\nauto_refund_enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LPID != "lp-7" || cfg.LPName != "test-lp" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.AutoRefundEnabled {
		t.Error("expected auto_refund_enabled to be overridden to false")
	}
	// Fields not present in the file keep the Default() value.
	if cfg.SafetyMargins.BTCBlocks != 144 {
		t.Errorf("expected untouched default safety margin, got %d", cfg.SafetyMargins.BTCBlocks)
	}
}
