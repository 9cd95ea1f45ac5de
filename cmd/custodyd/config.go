package main

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/gateway/devchain"
	"github.com/rafamiziara/superpool-sub007/gateway/ethgw"
	"github.com/rafamiziara/superpool-sub007/gconf"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	chainDev = "dev"
	chainRPC = "rpc"

	storeMemory   = "memory"
	storeBadger   = "badger"
	storePostgres = "postgres"
	storeSQLite   = "sqlite"
)

// ChainConfig is the "chain" section. Mode selects the simulated dev chain
// or a node reached over JSON-RPC.
type ChainConfig struct {
	Mode string `mapstructure:"mode"`
	// StateDir keeps the dev chain state between restarts. Empty means
	// memory only.
	StateDir string          `mapstructure:"state_dir"`
	Dev      devchain.Config `mapstructure:"dev"`
	RPC      ethgw.Config    `mapstructure:"rpc"`
}

func (c ChainConfig) Validate() error {
	switch c.Mode {
	case chainDev:
		return errors.Wrap(c.Dev.Validate(), "dev")
	case chainRPC:
		return errors.Wrap(c.RPC.Validate(), "rpc")
	default:
		return errors.Field("Mode", errors.ErrValidation, "must be %q or %q", chainDev, chainRPC)
	}
}

// StoreConfig is the "store" section.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Dir is the badger directory. With the SQL backends it still holds
	// the scheduler queue when set.
	Dir string `mapstructure:"dir"`
	// DSN is the postgres connection string or the sqlite file.
	DSN string `mapstructure:"dsn"`
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case storeMemory:
	case storeBadger:
		if c.Dir == "" {
			return errors.Field("Dir", errors.ErrEmpty, "badger requires a directory")
		}
	case storePostgres, storeSQLite:
		if c.DSN == "" {
			return errors.Field("DSN", errors.ErrEmpty, "%s requires a DSN", c.Backend)
		}
	default:
		return errors.Field("Backend", errors.ErrValidation, "unknown backend %q", c.Backend)
	}
	return nil
}

// AuditConfig is the "audit" section. Entries are always logged. With a
// SQLite path they are stored as well.
type AuditConfig struct {
	SQLite string `mapstructure:"sqlite"`
}

func (AuditConfig) Validate() error { return nil }

// CronConfig is the "cron" section.
type CronConfig struct {
	Resolution        time.Duration `mapstructure:"resolution"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

func (c CronConfig) Validate() error {
	var errs error
	if c.Resolution <= 0 {
		errs = errors.AppendField(errs, "Resolution", errors.ErrEmpty)
	}
	if c.SweepInterval < time.Second {
		errs = errors.AppendField(errs, "SweepInterval",
			errors.Wrap(errors.ErrValidation, "must be at least one second"))
	}
	if c.ReconcileInterval < time.Second {
		errs = errors.AppendField(errs, "ReconcileInterval",
			errors.Wrap(errors.ErrValidation, "must be at least one second"))
	}
	return errs
}

// LogConfig is the "log" section.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func (c LogConfig) Validate() error {
	if _, err := log.AllowLevel(c.Level); err != nil {
		return errors.Field("Level", errors.ErrValidation, err.Error())
	}
	return nil
}

// Configuration holds all sections read by the daemon.
type Configuration struct {
	Server   api.Config
	Chain    ChainConfig
	Store    StoreConfig
	Multisig multisig.Config
	Audit    AuditConfig
	Auth     api.AuthConfig
	Cron     CronConfig
	Log      LogConfig
}

// DefaultConfiguration runs a dev chain with everything kept in memory.
func DefaultConfiguration() Configuration {
	return Configuration{
		Server: api.DefaultConfig(),
		Chain: ChainConfig{
			Mode: chainDev,
			Dev:  devchain.DefaultConfig(),
			RPC:  ethgw.Config{PollInterval: 2 * time.Second},
		},
		Store:    StoreConfig{Backend: storeMemory},
		Multisig: multisig.DefaultConfig(),
		Cron: CronConfig{
			Resolution:        time.Second,
			SweepInterval:     time.Minute,
			ReconcileInterval: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// sections binds every section name to its destination.
func (c *Configuration) sections() []struct {
	name string
	dst  gconf.ValidConfiguration
} {
	return []struct {
		name string
		dst  gconf.ValidConfiguration
	}{
		{"server", &c.Server},
		{"chain", &c.Chain},
		{"store", &c.Store},
		{"multisig", &c.Multisig},
		{"audit", &c.Audit},
		{"auth", &c.Auth},
		{"cron", &c.Cron},
		{"log", &c.Log},
	}
}

// declareDefaults registers conf as the defaults of v.
func declareDefaults(v *viper.Viper, conf Configuration) error {
	for _, s := range conf.sections() {
		if s.name == "auth" {
			// A list of tables has no per key default.
			continue
		}
		if err := gconf.SetDefaults(v, s.name, s.dst); err != nil {
			return err
		}
	}
	return nil
}

// loadConfiguration reads the configuration file at path, which may be
// empty, on top of the defaults.
func loadConfiguration(path string) (*Configuration, error) {
	v, err := gconf.New(path)
	if err != nil {
		return nil, err
	}
	conf := DefaultConfiguration()
	if err := declareDefaults(v, conf); err != nil {
		return nil, err
	}
	for _, s := range conf.sections() {
		if err := gconf.Load(v, s.name, s.dst); err != nil {
			return nil, err
		}
	}
	if conf.Chain.Mode == chainDev && conf.Multisig.MultiSend == (common.Address{}) {
		conf.Multisig.MultiSend = conf.Chain.Dev.MultiSend
	}
	return &conf, nil
}

// newLogger returns the process logger writing to w.
func newLogger(conf LogConfig, w io.Writer) (log.Logger, error) {
	logger := log.NewTMLogger(log.NewSyncWriter(w))
	opt, err := log.AllowLevel(conf.Level)
	if err != nil {
		return nil, errors.Field("Level", errors.ErrValidation, err.Error())
	}
	return log.NewFilter(logger, opt).With("module", "custodyd"), nil
}
