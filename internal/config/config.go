package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Exit codes used by the daemon entry points.
const (
	ExitInvalidConfig   = 1
	ExitNoQueue         = 2
	ExitConnectionError = 3
	ExitUnknownError    = 4
)

const (
	defaultRedisPassword    = "CHANGE ME!!"
	defaultPostgresPassword = "CHANGE ME!!"
)

type Main struct {
	Verbose           bool `toml:"verbose"`
	NumberOfWorkers   int  `toml:"number_of_workers"`
	ExitOnEmptyQueues bool `toml:"exit_on_empty_queues"`
}

type Redis struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type PostgreSQL struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

func (p PostgreSQL) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Database)
}

// Queue binds a queue name to the handler drained from it. The handler value
// is resolved against the worker handler registry.
type Queue struct {
	Handler string `toml:"handler"`
}

type Config struct {
	Main       Main             `toml:"main"`
	Redis      Redis            `toml:"redis"`
	PostgreSQL PostgreSQL       `toml:"postgresql"`
	Queues     map[string]Queue `toml:"queues"`
}

func defaults() *Config {
	return &Config{
		Main: Main{
			NumberOfWorkers: runtime.NumCPU(),
		},
		Redis: Redis{
			Host:     "localhost",
			Port:     6379,
			Password: defaultRedisPassword,
		},
		PostgreSQL: PostgreSQL{
			Host:     "localhost",
			Port:     5432,
			User:     "azafea",
			Password: defaultPostgresPassword,
			Database: "azafea",
		},
		Queues: map[string]Queue{},
	}
}

// InvalidError reports a configuration value the daemon cannot run with.
type InvalidError struct {
	Option string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Option, e.Reason)
}

// Load reads the TOML file at path on top of the built-in defaults. A missing
// file is equivalent to an empty one.
func Load(path string) (*Config, error) {
	cfg := defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, &InvalidError{Option: path, Reason: err.Error()}
	}
	if cfg.Main.NumberOfWorkers < 1 {
		return nil, &InvalidError{Option: "main.number_of_workers", Reason: "must be a strictly positive integer"}
	}
	for name, q := range cfg.Queues {
		if q.Handler == "" {
			return nil, &InvalidError{Option: "queues." + name + ".handler", Reason: "must name a registered handler"}
		}
	}
	return cfg, nil
}

// Warnings lists credential options still at their insecure defaults.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Redis.Password == defaultRedisPassword {
		warnings = append(warnings, "redis.password is the default; this is insecure")
	}
	if c.PostgreSQL.Password == defaultPostgresPassword {
		warnings = append(warnings, "postgresql.password is the default; this is insecure")
	}
	return warnings
}

// QueueNames returns the configured queue names in no particular order.
func (c *Config) QueueNames() []string {
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	return names
}
