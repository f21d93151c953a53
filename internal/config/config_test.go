package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalPaperConfig = `
environment:
  mode: paper
webhook:
  secret: hunter2
`

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalPaperConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.IsPaperTrading() {
		t.Error("mode should be paper")
	}
	if cfg.Webhook.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Webhook.Port)
	}
	if cfg.Broker.ExchangeSegment != "NSE_FNO" || cfg.Broker.OrderType != "MARKET" || cfg.Broker.ProductType != "INTRADAY" {
		t.Errorf("broker defaults wrong: %+v", cfg.Broker)
	}
	if cfg.Strategy.CEStrikeType != "ITM1" || cfg.Strategy.PEStrikeType != "ITM1" {
		t.Errorf("strike type defaults wrong: %+v", cfg.Strategy)
	}
	if cfg.Strategy.StrikeStep != 50 || cfg.Strategy.Lots != 1 {
		t.Errorf("strategy defaults wrong: %+v", cfg.Strategy)
	}
	if cfg.Storage.Path != "tv_bridge_state.json" {
		t.Errorf("storage path default wrong: %s", cfg.Storage.Path)
	}
	if cfg.GetBusyTimeout() != 0 {
		t.Errorf("busy timeout default = %v, want 0", cfg.GetBusyTimeout())
	}
	if cfg.GetCatalogHTTPTimeout() != 20*time.Second {
		t.Errorf("catalog timeout default = %v, want 20s", cfg.GetCatalogHTTPTimeout())
	}
	if cfg.GetCatalogRetryBackoff() != 800*time.Millisecond {
		t.Errorf("retry backoff default = %v, want 800ms", cfg.GetCatalogRetryBackoff())
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_SECRET", "from-env")
	cfg, err := Load(writeConfig(t, `
environment:
  mode: paper
webhook:
  secret: ${TEST_WEBHOOK_SECRET}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Webhook.Secret != "from-env" {
		t.Errorf("secret = %q, want from-env", cfg.Webhook.Secret)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, minimalPaperConfig+`
unknown_section:
  foo: bar
`))
	if err == nil {
		t.Fatal("unknown fields should be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"bad mode",
			"environment:\n  mode: demo\nwebhook:\n  secret: s\n",
			"environment.mode",
		},
		{
			"missing secret",
			"environment:\n  mode: paper\n",
			"webhook.secret",
		},
		{
			"live without credentials",
			"environment:\n  mode: live\nwebhook:\n  secret: s\n",
			"broker.client_id",
		},
		{
			"bad strike type",
			"environment:\n  mode: paper\nwebhook:\n  secret: s\nstrategy:\n  ce_strike_type: ITM9\n",
			"ce_strike_type",
		},
		{
			"negative expiry index",
			"environment:\n  mode: paper\nwebhook:\n  secret: s\nstrategy:\n  expiry_index: -1\n",
			"expiry_index",
		},
		{
			"bad busy timeout",
			"environment:\n  mode: paper\nwebhook:\n  secret: s\nstrategy:\n  busy_timeout: soonish\n",
			"busy_timeout",
		},
		{
			"telegram half configured",
			"environment:\n  mode: paper\nwebhook:\n  secret: s\nnotify:\n  telegram_bot_token: tok\n",
			"telegram",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadLiveMode(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
environment:
  mode: live
broker:
  client_id: CID
  access_token: TOKEN
webhook:
  secret: s
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IsPaperTrading() {
		t.Error("live mode reported as paper")
	}
}
