package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the pipeline configuration loaded from config.yaml with selected
// environment overrides applied on top.
type Config struct {
	Exchange    string   `yaml:"exchange"`
	Universe    []string `yaml:"universe"`
	PollSeconds int      `yaml:"poll_seconds"`
	DaysBack    int      `yaml:"days_back"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Providers struct {
		Default       string   `yaml:"default"`
		PriorityOrder []string `yaml:"priority_order"`
		Failover      struct {
			Enabled       bool `yaml:"enabled"`
			RetryAttempts int  `yaml:"retry_attempts"`
		} `yaml:"failover"`
		Health struct {
			StartupCheck         bool `yaml:"startup_check"`
			RecoveryNotification bool `yaml:"recovery_notification"`
		} `yaml:"health"`
	} `yaml:"providers"`

	Indicators struct {
		SMAWindows []int   `yaml:"sma_windows"`
		RSIPeriod  int     `yaml:"rsi_period"`
		MACDFast   int     `yaml:"macd_fast"`
		MACDSlow   int     `yaml:"macd_slow"`
		MACDSignal int     `yaml:"macd_signal"`
		BBWindow   int     `yaml:"bb_window"`
		BBStdDev   float64 `yaml:"bb_stddev"`
		Confidence float64 `yaml:"confidence_threshold"`
	} `yaml:"indicators"`
}

func (c *Config) Validate() error {
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.Providers.Default == "" {
		return errors.New("providers.default cannot be empty")
	}
	found := false
	for _, name := range c.Providers.PriorityOrder {
		if strings.EqualFold(name, c.Providers.Default) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default provider %q not in priority_order", c.Providers.Default)
	}
	if c.Indicators.Confidence < 0 || c.Indicators.Confidence > 1 {
		return fmt.Errorf("indicators.confidence_threshold must be in 0..1, got %.2f", c.Indicators.Confidence)
	}
	return nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 300
	}
	if c.DaysBack == 0 {
		c.DaysBack = 365
	}
	if c.Database.Path == "" {
		c.Database.Path = "pipeline.db"
	}
	if len(c.Providers.PriorityOrder) == 0 {
		c.Providers.PriorityOrder = []string{"fyers", "shoonya", "mstock", "kite", "sample"}
	}
	if c.Providers.Default == "" {
		c.Providers.Default = c.Providers.PriorityOrder[0]
	}
	if c.Providers.Failover.RetryAttempts == 0 {
		c.Providers.Failover.Enabled = true
		c.Providers.Failover.RetryAttempts = 3
	}
	if len(c.Indicators.SMAWindows) == 0 {
		c.Indicators.SMAWindows = []int{20, 50, 200}
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.MACDFast == 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow == 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal == 0 {
		c.Indicators.MACDSignal = 9
	}
	if c.Indicators.BBWindow == 0 {
		c.Indicators.BBWindow = 20
	}
	if c.Indicators.BBStdDev == 0 {
		c.Indicators.BBStdDev = 2
	}
	if c.Indicators.Confidence == 0 {
		c.Indicators.Confidence = 0.3
	}
}

// applyEnvOverrides mirrors the deployment knobs that need flipping without
// editing config.yaml.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PREFERRED_DATA_PROVIDER"); v != "" {
		c.Providers.Default = strings.ToLower(v)
	}
	if v := os.Getenv("FAILOVER_ENABLED"); v != "" {
		c.Providers.Failover.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Providers.Failover.RetryAttempts = n
		}
	}
	if v := os.Getenv("PIPELINE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// The methods below satisfy provider.Settings.

func (c *Config) DefaultProvider() string { return strings.ToLower(c.Providers.Default) }

func (c *Config) ProviderPriority() []string {
	out := make([]string, len(c.Providers.PriorityOrder))
	for i, n := range c.Providers.PriorityOrder {
		out[i] = strings.ToLower(n)
	}
	return out
}

func (c *Config) FailoverEnabled() bool { return c.Providers.Failover.Enabled }

func (c *Config) RetryAttempts() int { return c.Providers.Failover.RetryAttempts }

func (c *Config) NotifyRecovery() bool { return c.Providers.Health.RecoveryNotification }
