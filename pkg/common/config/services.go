package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/goccy/go-yaml"
)

type RoomsConfig struct {
	Defaults RoomConfig            `yaml:"defaults" validate:"-"`
	Items    map[string]RoomConfig `yaml:",inline" validate:"required,min=1,dive"`
}

// UnmarshalYAML splits out "defaults" from inline room entries
func (c *RoomsConfig) UnmarshalYAML(b []byte) error {
	var raw map[string]RoomConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]RoomConfig{}
	}
	if def, ok := raw["defaults"]; ok {
		c.Defaults = def
		delete(raw, "defaults")
	}
	c.Items = raw
	return nil
}

type RoomConfig struct {
	Name              string        `yaml:"name" validate:"required"`
	RoundSeconds      int           `yaml:"round_seconds" validate:"required,min=1"`
	TickInterval      time.Duration `yaml:"tick_interval" validate:"required"`
	SpinDelay         time.Duration `yaml:"spin_delay"`
	MaxWinnersHistory int           `yaml:"max_winners_history" validate:"required,min=1"`
	Bias              BiasDefaults  `yaml:"bias"`
}

// BiasDefaults seed a room's admin configuration the first time it starts.
// Once persisted, the stored configuration wins.
type BiasDefaults struct {
	HouseEdge    *float64 `yaml:"house_edge" validate:"omitempty,min=0,max=100"`
	MinWinChance *float64 `yaml:"min_win_chance" validate:"omitempty,min=0,max=100"`
	FavorFactor  *float64 `yaml:"favor_factor" validate:"omitempty,min=1"`
	Logging      *bool    `yaml:"logging"`
}

func (c *RoomsConfig) Names() []string {
	names := make([]string, 0, len(c.Items))
	for name := range c.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *RoomsConfig) Get(name string) (RoomConfig, error) {
	if rc, ok := c.Items[name]; ok {
		return rc, nil
	}
	return RoomConfig{}, fmt.Errorf("room %s not found", name)
}

type NatsConfig struct {
	URL           string        `yaml:"url" validate:"omitempty,url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TLS           NatsTLSConfig `yaml:"tls"`
}

type NatsTLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" validate:"min=0"`
}

type RedisConfig struct {
	URL      string         `yaml:"url"`
	Password string         `yaml:"password"`
	TLS      RedisTLSConfig `yaml:"tls"`
}

type RedisTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

type KVSConfig struct {
	Type   enum.KVStoreType `yaml:"type" validate:"required,oneof=badger consul"`
	Consul ConsulConfig     `yaml:"consul"`
	Badger BadgerConfig     `yaml:"badger"`
}

type ConsulConfig struct {
	Scheme   string         `yaml:"scheme"`
	Address  string         `yaml:"address"`
	Folder   string         `yaml:"folder"`
	Token    string         `yaml:"token"`
	HttpAuth HttpAuthConfig `yaml:"http_auth"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BadgerConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}
