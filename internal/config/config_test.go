package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
universe:
  - RELIANCE
  - TCS
providers:
  default: fyers
  priority_order: [fyers, sample]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Exchange != "NSE" {
		t.Errorf("Exchange = %q", cfg.Exchange)
	}
	if cfg.PollSeconds != 300 || cfg.DaysBack != 365 {
		t.Errorf("poll/days defaults wrong: %d %d", cfg.PollSeconds, cfg.DaysBack)
	}
	if cfg.Database.Path != "pipeline.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Providers.Failover.Enabled || cfg.Providers.Failover.RetryAttempts != 3 {
		t.Errorf("failover defaults wrong: %+v", cfg.Providers.Failover)
	}
	if cfg.Indicators.RSIPeriod != 14 || cfg.Indicators.MACDSlow != 26 || cfg.Indicators.Confidence != 0.3 {
		t.Errorf("indicator defaults wrong: %+v", cfg.Indicators)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
exchange: NSE
universe: [RELIANCE]
poll_seconds: 60
days_back: 90
database:
  path: /tmp/test.db
providers:
  default: shoonya
  priority_order: [shoonya, fyers, sample]
  failover:
    enabled: true
    retry_attempts: 5
  health:
    startup_check: true
    recovery_notification: true
indicators:
  rsi_period: 21
  confidence_threshold: 0.5
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollSeconds != 60 || cfg.DaysBack != 90 {
		t.Errorf("explicit values overridden: %+v", cfg)
	}
	if cfg.Providers.Failover.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d", cfg.Providers.Failover.RetryAttempts)
	}
	if cfg.Indicators.RSIPeriod != 21 || cfg.Indicators.Confidence != 0.5 {
		t.Errorf("indicators = %+v", cfg.Indicators)
	}
	// Untouched indicator fields still get defaults.
	if cfg.Indicators.MACDFast != 12 {
		t.Errorf("MACDFast = %d", cfg.Indicators.MACDFast)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PREFERRED_DATA_PROVIDER", "SAMPLE")
	t.Setenv("FAILOVER_ENABLED", "false")
	t.Setenv("RETRY_ATTEMPTS", "7")
	t.Setenv("PIPELINE_DB_PATH", "/tmp/override.db")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProvider() != "sample" {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider())
	}
	if cfg.FailoverEnabled() {
		t.Error("FAILOVER_ENABLED=false ignored")
	}
	if cfg.RetryAttempts() != 7 {
		t.Errorf("RetryAttempts = %d", cfg.RetryAttempts())
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"empty universe": `
providers:
  default: fyers
  priority_order: [fyers]
`,
		"default not in priority order": `
universe: [RELIANCE]
providers:
  default: kite
  priority_order: [fyers, sample]
`,
		"confidence out of range": `
universe: [RELIANCE]
providers:
  default: fyers
  priority_order: [fyers]
indicators:
  confidence_threshold: 1.5
`,
	}
	for name, yml := range cases {
		if _, err := Load(writeConfig(t, yml)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSettingsViewIsLowercased(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
universe: [RELIANCE]
providers:
  default: FYERS
  priority_order: [FYERS, Sample]
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultProvider() != "fyers" {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider())
	}
	pri := cfg.ProviderPriority()
	if pri[0] != "fyers" || pri[1] != "sample" {
		t.Errorf("ProviderPriority = %v", pri)
	}
}
