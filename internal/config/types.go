package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	OutputPath string `mapstructure:"output_path"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory redis sqlite mysql"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	Prefix   string        `mapstructure:"prefix"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"min=0"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"min=0"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" validate:"min=0"`
}

// BootstrapConfig seeds the policy at startup when Admin is set and no policy
// exists yet.
type BootstrapConfig struct {
	Admin         string `mapstructure:"admin" validate:"omitempty,len=64,hexadecimal"`
	MaxRequests   uint64 `mapstructure:"max_requests"`
	WindowSeconds int64  `mapstructure:"window_seconds"`
	BurstLimit    uint64 `mapstructure:"burst_limit"`
}

func (b *BootstrapConfig) Enabled() bool {
	return b.Admin != ""
}
