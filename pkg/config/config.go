package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Terminal policies for a cycle's final step.
const (
	ModeBurn    = "burn"
	ModeAirdrop = "airdrop"
)

// Winner weighting policies for the airdrop terminal.
const (
	EntryModeUniform = "uniform"
	EntryModeBalance = "balance"
	EntryModeKeyword = "keyword"
)

// Config is assembled once at startup from the environment and passed into
// each component. It is not mutated after Load.
type Config struct {
	// Chain
	RPCURL  string
	Mint    solana.PublicKey
	Wallet  solana.PublicKey
	Signer  solana.PrivateKey // zero-length when no secret is configured
	Network string

	// Cycle
	Mode          string
	EntryMode     string
	CycleInterval time.Duration
	EnableCron    bool

	// Swap sizing
	ReserveSOL                float64
	MinSwapSOL                float64
	SlippageBps               int
	MinPumpSOL                float64
	TargetPumpSOL             float64
	PumpSlippagePct           float64
	PriorityFeeSOL            float64
	PriorityFeeMicro          uint64 // compute-unit price for disposal txs, microlamports
	PrioritizationFeeLamports uint64

	// Services
	JupiterBaseURL    string
	PumpPortalBaseURL string

	// Server
	ListenAddr       string
	MetricsAddr      string
	AdminBearerToken string
	FrontendOrigins  []string

	// Storage and observability
	DBPath    string
	SentryDSN string
}

// Load reads configuration from the environment. A missing signer secret is
// not an error here: status paths must keep working without one, and signing
// paths check CanSign at use time.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:            envOr("RPC_URL", "https://api.mainnet-beta.solana.com"),
		Mode:              strings.ToLower(envOr("FLYWHEEL_MODE", ModeBurn)),
		EntryMode:         strings.ToLower(envOr("ENTRY_MODE", EntryModeUniform)),
		JupiterBaseURL:    envOr("JUPITER_BASE_URL", "https://quote-api.jup.ag"),
		PumpPortalBaseURL: envOr("PUMPPORTAL_BASE_URL", "https://pumpportal.fun"),
		ListenAddr:        envOr("LISTEN_ADDR", ":8787"),
		MetricsAddr:       envOr("METRICS_ADDR", ""),
		AdminBearerToken:  os.Getenv("ADMIN_BEARER_TOKEN"),
		DBPath:            envOr("DB_PATH", "./data"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		EnableCron:        os.Getenv("ENABLE_CRON") != "false",
	}

	var err error
	if cfg.CycleInterval, err = envDuration("CYCLE_INTERVAL", 20*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReserveSOL, err = envFloat("SOL_RESERVE", 0.02); err != nil {
		return nil, err
	}
	if cfg.MinSwapSOL, err = envFloat("MIN_SWAP_SOL", 0.001); err != nil {
		return nil, err
	}
	if cfg.SlippageBps, err = envInt("SLIPPAGE_BPS", 300); err != nil {
		return nil, err
	}
	if cfg.MinPumpSOL, err = envFloat("MIN_PUMP_SOL", 0.01); err != nil {
		return nil, err
	}
	if cfg.TargetPumpSOL, err = envFloat("TARGET_PUMP_SOL", 0); err != nil {
		return nil, err
	}
	if cfg.PumpSlippagePct, err = envFloat("PUMP_SLIPPAGE_PCT", 3); err != nil {
		return nil, err
	}
	if cfg.PriorityFeeSOL, err = envFloat("PRIORITY_FEE_SOL", 0); err != nil {
		return nil, err
	}
	if cfg.PriorityFeeMicro, err = envUint("PRIORITY_FEE_MICROLAMPORTS", 2000); err != nil {
		return nil, err
	}
	if cfg.PrioritizationFeeLamports, err = envUint("PRIORITIZATION_FEE_LAMPORTS", 0); err != nil {
		return nil, err
	}

	mint := os.Getenv("MINT_ADDRESS")
	if mint == "" {
		return nil, errors.New("MINT_ADDRESS is required")
	}
	if cfg.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("invalid MINT_ADDRESS: %w", err)
	}

	if secret := strings.TrimSpace(os.Getenv("SIGNER_SECRET_KEY")); secret != "" {
		if cfg.Signer, err = ParseSecretKey(secret); err != nil {
			return nil, fmt.Errorf("invalid SIGNER_SECRET_KEY: %w", err)
		}
		cfg.Wallet = cfg.Signer.PublicKey()
	}
	if dev := os.Getenv("DEV_PUBLIC_KEY"); dev != "" {
		pk, err := solana.PublicKeyFromBase58(dev)
		if err != nil {
			return nil, fmt.Errorf("invalid DEV_PUBLIC_KEY: %w", err)
		}
		if cfg.Wallet.IsZero() {
			cfg.Wallet = pk
		} else if !cfg.Wallet.Equals(pk) {
			return nil, errors.New("DEV_PUBLIC_KEY does not match SIGNER_SECRET_KEY")
		}
	}
	if cfg.Wallet.IsZero() {
		return nil, errors.New("one of SIGNER_SECRET_KEY or DEV_PUBLIC_KEY is required")
	}

	if origins := os.Getenv("FRONTEND_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.FrontendOrigins = append(cfg.FrontendOrigins, o)
			}
		}
	}

	cfg.Network = "mainnet"
	if strings.Contains(cfg.RPCURL, "devnet") {
		cfg.Network = "devnet"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeBurn, ModeAirdrop:
	default:
		return fmt.Errorf("FLYWHEEL_MODE must be %q or %q, got %q", ModeBurn, ModeAirdrop, c.Mode)
	}
	switch c.EntryMode {
	case EntryModeUniform, EntryModeBalance, EntryModeKeyword:
	default:
		return fmt.Errorf("ENTRY_MODE must be one of uniform, balance, keyword; got %q", c.EntryMode)
	}
	if c.CycleInterval <= 0 {
		return errors.New("cycle interval must be greater than 0")
	}
	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		return fmt.Errorf("SLIPPAGE_BPS out of range: %d", c.SlippageBps)
	}
	return nil
}

// CanSign reports whether a signer secret is configured. Operations that
// submit transactions require it; status paths do not.
func (c *Config) CanSign() bool {
	return len(c.Signer) > 0
}

// ParseSecretKey accepts either a base58-encoded secret key or the JSON byte
// array format emitted by solana-keygen.
func ParseSecretKey(raw string) (solana.PrivateKey, error) {
	if strings.HasPrefix(raw, "[") {
		var nums []uint16
		if err := json.Unmarshal([]byte(raw), &nums); err != nil {
			return nil, fmt.Errorf("decode json key array: %w", err)
		}
		if len(nums) != 64 {
			return nil, fmt.Errorf("expected 64-byte secret key, got %d", len(nums))
		}
		b := make([]byte, len(nums))
		for i, n := range nums {
			if n > 255 {
				return nil, fmt.Errorf("key byte %d out of range: %d", i, n)
			}
			b[i] = byte(n)
		}
		return solana.PrivateKey(b), nil
	}
	b, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base58 key: %w", err)
	}
	if len(b) != 64 {
		return nil, fmt.Errorf("expected 64-byte secret key, got %d", len(b))
	}
	return solana.PrivateKey(b), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	// Accept bare seconds for compatibility with CYCLE_SECONDS-style configs.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
