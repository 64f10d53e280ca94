package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"
)

var validate = validator.New()

type Config struct {
	Environment string            `yaml:"environment" validate:"required,oneof=production development"`
	HTTP        HTTPConfig        `yaml:"http"`
	Relay       RelayServerConfig `yaml:"relay"`
	Rooms       RoomsConfig       `yaml:"rooms" validate:"required"`
	KVStore     KVSConfig         `yaml:"kvstore" validate:"required"`
	Activity    ActivityConfig    `yaml:"activity"`
	NATS        NatsConfig        `yaml:"nats"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Payout      PayoutConfig      `yaml:"payout"`
	Solana      SolanaConfig      `yaml:"solana"`
	Fairness    FairnessConfig    `yaml:"fairness"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port" validate:"omitempty,min=1,max=65535"`
	AdminToken     string   `yaml:"admin_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// JoinRPS and JoinBurst bound bets per wallet (or per client IP when anonymous)
	JoinRPS        int      `yaml:"join_rps" validate:"omitempty,min=1"`
	JoinBurst      int      `yaml:"join_burst" validate:"omitempty,min=1"`
}

type RelayServerConfig struct {
	Port      int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	AuthToken string `yaml:"auth_token"`
}

type ActivityConfig struct {
	Backend enum.ActivityBackend `yaml:"backend" validate:"omitempty,oneof=kv postgres"`
}

type PayoutConfig struct {
	Executor             enum.PayoutExecutorType `yaml:"executor" validate:"required,oneof=relay solana noop"`
	PollInterval         time.Duration           `yaml:"poll_interval"`
	MaxAttempts          int                     `yaml:"max_attempts" validate:"min=0"`
	RetryInitialInterval time.Duration           `yaml:"retry_initial_interval"`
	RetryMaxElapsed      time.Duration           `yaml:"retry_max_elapsed"`
	ManualReview         bool                    `yaml:"manual_review"`
	Relay                RelayClientConfig       `yaml:"relay"`
}

type RelayClientConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type FairnessConfig struct {
	// commit_reveal (default) or insecure
	Mode string `yaml:"mode" validate:"omitempty,oneof=commit_reveal insecure"`
	// solana uses the latest blockhash as public entropy, round uses the round number only
	Beacon string `yaml:"beacon" validate:"omitempty,oneof=solana round"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(b))), &cfg); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()

	// merge room defaults
	for name, room := range cfg.Rooms.Items {
		if room.Name == "" {
			room.Name = name
		}
		if err := mergo.Merge(&room, cfg.Rooms.Defaults); err != nil {
			return cfg, err
		}
		cfg.Rooms.Items[name] = room
	}

	if err := cfg.Solana.FinalizeNodes(); err != nil {
		return cfg, err
	}

	if err := validate.Struct(cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validateDependencies(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := &c.Rooms.Defaults
	if d.RoundSeconds == 0 {
		d.RoundSeconds = constant.DefaultRoundSeconds
	}
	if d.TickInterval == 0 {
		d.TickInterval = time.Second
	}
	if d.MaxWinnersHistory == 0 {
		d.MaxWinnersHistory = constant.DefaultMaxWinnersHistory
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.JoinRPS == 0 {
		c.HTTP.JoinRPS = 5
	}
	if c.HTTP.JoinBurst == 0 {
		c.HTTP.JoinBurst = 10
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 3001
	}
	if c.KVStore.Type == enum.KVStoreTypeBadger && c.KVStore.Badger.Directory == "" {
		c.KVStore.Badger.Directory = "data/jackpot"
	}
	if c.Activity.Backend == "" {
		c.Activity.Backend = enum.ActivityBackendKV
	}
	if c.Payout.PollInterval == 0 {
		c.Payout.PollInterval = 5 * time.Second
	}
	if c.Payout.MaxAttempts == 0 {
		c.Payout.MaxAttempts = 5
	}
	if c.Payout.RetryInitialInterval == 0 {
		c.Payout.RetryInitialInterval = time.Second
	}
	if c.Payout.RetryMaxElapsed == 0 {
		c.Payout.RetryMaxElapsed = 30 * time.Second
	}
	if c.Payout.Relay.Timeout == 0 {
		c.Payout.Relay.Timeout = 30 * time.Second
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Solana.Timeout == 0 {
		c.Solana.Timeout = 15 * time.Second
	}
	if c.Solana.ConfirmTimeout == 0 {
		c.Solana.ConfirmTimeout = 60 * time.Second
	}
	if c.Fairness.Mode == "" {
		c.Fairness.Mode = "commit_reveal"
	}
	if c.Fairness.Beacon == "" {
		c.Fairness.Beacon = "round"
	}
}

func (c *Config) validateDependencies() error {
	switch c.Payout.Executor {
	case enum.PayoutExecutorRelay:
		if c.Payout.Relay.URL == "" {
			return errors.New("payout.relay.url is required for relay executor")
		}
	case enum.PayoutExecutorSolana:
		if len(c.Solana.Nodes) == 0 {
			return errors.New("solana.nodes is required for solana executor")
		}
		if c.Solana.HouseKeyEnv == "" && c.Solana.HouseKeyFile == "" {
			return errors.New("solana.house_key_env or solana.house_key_file is required for solana executor")
		}
	}
	if c.Fairness.Beacon == "solana" && len(c.Solana.Nodes) == 0 {
		return errors.New("solana.nodes is required for the solana fairness beacon")
	}
	if c.Activity.Backend == enum.ActivityBackendPostgres && c.Postgres.URL == "" {
		return errors.New("postgres.url is required for the postgres activity backend")
	}
	if c.Payout.ManualReview && c.Redis.URL == "" {
		return errors.New("redis.url is required when payout.manual_review is enabled")
	}
	if c.Environment == constant.EnvProduction && c.HTTP.AdminToken == "" {
		return fmt.Errorf("http.admin_token is required in %s", constant.EnvProduction)
	}
	return nil
}
