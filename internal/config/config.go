package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string     `yaml:"environment"`
	Server      ServerCfg  `yaml:"server"`
	Ledger      LedgerCfg  `yaml:"ledger"`
	Sponsor     SponsorCfg `yaml:"sponsor"`
	Policy      PolicyCfg  `yaml:"policy"`
	Poller      PollerCfg  `yaml:"poller"`
	NATS        NATSCfg    `yaml:"nats"`
	KVStore     KVStoreCfg `yaml:"kvstore"`
}

type ServerCfg struct {
	Addr string `yaml:"addr"`
}

type LedgerCfg struct {
	// URL can include ${VAR_NAME} which is replaced from the environment,
	// e.g. "https://fullnode.mainnet.sui.io:443/${API_KEY}".
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	// DonationPackage is the on-chain package the donate call targets.
	DonationPackage string `yaml:"donation_package"`
	// DonationEventType is the fully qualified event type emitted by the donate call.
	DonationEventType string `yaml:"donation_event_type"`
	// GasCoinType is the fee asset, "0x2::sui::SUI" on Sui.
	GasCoinType  string `yaml:"gas_coin_type"`
	CoinDecimals int32  `yaml:"coin_decimals"`
	// MaxRPS throttles outbound RPCs to the node; 0 disables throttling.
	MaxRPS int `yaml:"max_rps"`
}

type SponsorCfg struct {
	// KeyFile holds the base64 sponsor key envelope; KeyEnv names an env var
	// carrying the same. Exactly one must be set for the serve command.
	KeyFile string `yaml:"key_file"`
	KeyEnv  string `yaml:"key_env"`
}

type PolicyCfg struct {
	// MinDonation is enforced server-side, in the asset's minor units.
	MinDonation uint64 `yaml:"min_donation"`
	// GasBuffer scales the simulated net cost; must be >= 1.0.
	GasBuffer float64 `yaml:"gas_buffer"`
	// MinGasBudget is the floor applied after scaling.
	MinGasBudget uint64 `yaml:"min_gas_budget"`
	// PlaceholderGasBudget is the budget used for the dry run only.
	PlaceholderGasBudget uint64 `yaml:"placeholder_gas_budget"`
	// SubmitRetryWindow bounds transport-level submit retries.
	SubmitRetryWindow time.Duration `yaml:"submit_retry_window"`
}

type PollerCfg struct {
	Interval time.Duration `yaml:"interval"`
	PageSize int           `yaml:"page_size"`
	// Beneficiaries are the addresses whose incoming donations are polled,
	// one background loop each.
	Beneficiaries []string `yaml:"beneficiaries"`
}

type NATSCfg struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// PushSubject carries row-insert notifications from the application datastore.
	PushSubject string `yaml:"push_subject"`
	// DedupCapacity bounds the already-delivered set.
	DedupCapacity int `yaml:"dedup_capacity"`
}

type KVStoreCfg struct {
	Type      string `yaml:"type"` // memory | badger
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

// Load reads YAML, applies defaults, resolves ${ENV_VAR} references, and validates.
func Load(path string) (Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 10 * time.Second
	}
	if cfg.Ledger.GasCoinType == "" {
		cfg.Ledger.GasCoinType = "0x2::sui::SUI"
	}
	if cfg.Ledger.CoinDecimals == 0 {
		cfg.Ledger.CoinDecimals = 9
	}
	if cfg.Policy.GasBuffer == 0 {
		cfg.Policy.GasBuffer = 1.2
	}
	if cfg.Policy.MinGasBudget == 0 {
		cfg.Policy.MinGasBudget = 2_000_000
	}
	if cfg.Policy.PlaceholderGasBudget == 0 {
		cfg.Policy.PlaceholderGasBudget = 50_000_000
	}
	if cfg.Policy.SubmitRetryWindow == 0 {
		cfg.Policy.SubmitRetryWindow = 15 * time.Second
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 5 * time.Second
	}
	if cfg.Poller.PageSize == 0 {
		cfg.Poller.PageSize = 20
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "donations"
	}
	if cfg.NATS.DedupCapacity == 0 {
		cfg.NATS.DedupCapacity = 500
	}
	if cfg.KVStore.Type == "" {
		cfg.KVStore.Type = "memory"
	}
}

func resolveEnv(cfg *Config) {
	cfg.Ledger.URL = substituteEnvVars(cfg.Ledger.URL)
	cfg.NATS.URL = substituteEnvVars(cfg.NATS.URL)
	cfg.Sponsor.KeyFile = substituteEnvVars(cfg.Sponsor.KeyFile)
}

// substituteEnvVars replaces all ${VAR_NAME} patterns with their environment values.
func substituteEnvVars(s string) string {
	if s == "" {
		return s
	}

	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := s[start+2 : end]
		envValue := os.Getenv(varName)

		pattern := "${" + varName + "}"
		s = strings.ReplaceAll(s, pattern, envValue)
	}

	return s
}

func validate(cfg Config) error {
	if cfg.Environment != "production" && cfg.Environment != "development" {
		return fmt.Errorf("environment must be production or development, got %q", cfg.Environment)
	}
	if cfg.Ledger.URL == "" {
		return errors.New("ledger.url is required")
	}
	if cfg.Ledger.DonationPackage == "" {
		return errors.New("ledger.donation_package is required")
	}
	if cfg.Ledger.DonationEventType == "" {
		return errors.New("ledger.donation_event_type is required")
	}
	if cfg.Policy.MinDonation == 0 {
		return errors.New("policy.min_donation is required")
	}
	if cfg.Policy.GasBuffer < 1.0 {
		return fmt.Errorf("policy.gas_buffer must be >= 1.0, got %v", cfg.Policy.GasBuffer)
	}
	if cfg.Poller.Interval < time.Second {
		return fmt.Errorf("poller.interval must be >= 1s, got %v", cfg.Poller.Interval)
	}
	if cfg.Poller.PageSize <= 0 || cfg.Poller.PageSize > 100 {
		return fmt.Errorf("poller.page_size must be in 1..100, got %d", cfg.Poller.PageSize)
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.KVStore.Type != "memory" && cfg.KVStore.Type != "badger" {
		return fmt.Errorf("kvstore.type must be memory or badger, got %q", cfg.KVStore.Type)
	}
	if cfg.KVStore.Type == "badger" && cfg.KVStore.Directory == "" {
		return errors.New("kvstore.directory is required for badger")
	}
	return nil
}
