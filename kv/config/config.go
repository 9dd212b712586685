package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"github.com/spf13/pflag"
)

const (
	EngineMem     = "mem"
	EngineBadger  = "badger"
	EngineLevelDB = "leveldb"
)

type Config struct {
	LogLevel   string `toml:"log-level"`
	StatusAddr string `toml:"status-addr"` // Address serving prometheus metrics, empty to disable.
	Table      string `toml:"table"`       // Name of the variant table shared by rows and study metadata.

	Engine Engine `toml:"engine"`
	Lock   Lock   `toml:"lock"`
	Loader Loader `toml:"loader"`

	// Number of study configurations kept by the read cache, 0 disables it.
	StudyCacheSize int `toml:"study-cache-size"`
}

type Engine struct {
	Name   string `toml:"name"`    // One of mem, badger, leveldb.
	DBPath string `toml:"db-path"` // Directory to store the data in. Should exist and be writable.

	ValueThreshold   int   `toml:"value-threshold"`     // If value size >= this threshold, only store value offsets in tree.
	MaxTableSize     int64 `toml:"max-table-size"`      // Each table is at most this size.
	NumMemTables     int   `toml:"num-mem-tables"`      // Maximum number of tables to keep in memory, before stalling.
	NumL0Tables      int   `toml:"num-L0-tables"`       // Maximum number of Level 0 tables before we start compacting.
	NumL0TablesStall int   `toml:"num-L0-tables-stall"` // Maximum number of Level 0 tables before stalling.
	VlogFileSize     int64 `toml:"vlog-file-size"`      // Value log file size.
	NumCompactors    int   `toml:"num-compactors"`

	// Sync all writes to disk. Setting this to true would slow down data loading significantly.
	SyncWrite bool `toml:"sync-write"`
	// Block cache of the leveldb engine, written like "8MiB".
	BlockCacheCapacity ByteSize `toml:"block-cache-capacity"`
}

type Lock struct {
	Duration   Duration `toml:"duration"`    // How long an acquired study lock stays valid.
	Timeout    Duration `toml:"timeout"`     // How long to keep trying to acquire.
	MinBackoff Duration `toml:"min-backoff"` // First wait between attempts.
	MaxBackoff Duration `toml:"max-backoff"` // Cap of the exponential backoff.
}

type Loader struct {
	Workers     int     `toml:"workers"`
	RateLimit   float64 `toml:"rate-limit"`   // Variants written per second, 0 means unlimited.
	StrictCodec bool    `toml:"strict-codec"` // Fail on unknown bucket codes when reading rows back.
}

// DefineFlags registers command line overrides of the loader settings, bound to l.
func (l *Loader) DefineFlags(flags *pflag.FlagSet) {
	default0 := NewDefaultConfig().Loader
	flags.IntVar(&l.Workers, "workers", default0.Workers, "number of loader workers")
	flags.Float64Var(&l.RateLimit, "rate-limit", default0.RateLimit, "variants written per second, 0 means unlimited")
	flags.BoolVar(&l.StrictCodec, "strict-codec", default0.StrictCodec, "fail on unknown columns when decoding rows")
}

// ApplyFlags copies into l the loader settings explicitly set on flags, taking their values from src.
func (l *Loader) ApplyFlags(flags *pflag.FlagSet, src *Loader) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "workers":
			l.Workers = src.Workers
		case "rate-limit":
			l.RateLimit = src.RateLimit
		case "strict-codec":
			l.StrictCodec = src.StrictCodec
		}
	})
}

// Duration is a time.Duration that can be written as "5s" in TOML.
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ByteSize is a size in bytes that can be written as "64MiB" in TOML.
type ByteSize uint64

func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := units.RAMInBytes(string(text))
	if err != nil {
		return errors.WithStack(err)
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024
)

func (c *Config) Validate() error {
	switch c.Engine.Name {
	case EngineMem:
	case EngineBadger, EngineLevelDB:
		if c.Engine.DBPath == "" {
			return fmt.Errorf("engine %s needs a db-path", c.Engine.Name)
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine.Name)
	}
	if c.Table == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if strings.ContainsRune(c.Table, 0) {
		return fmt.Errorf("table name must not contain NUL")
	}
	if c.Lock.Duration.Duration <= 0 {
		return fmt.Errorf("lock duration must be greater than 0")
	}
	if c.Lock.MinBackoff.Duration <= 0 || c.Lock.MaxBackoff.Duration < c.Lock.MinBackoff.Duration {
		return fmt.Errorf("lock backoff must satisfy 0 < min-backoff <= max-backoff")
	}
	if c.Lock.Timeout.Duration < c.Lock.MinBackoff.Duration {
		log.Warnf("lock timeout %v is shorter than the first backoff %v, acquisition gets a single attempt",
			c.Lock.Timeout, c.Lock.MinBackoff)
	}
	if c.Loader.Workers <= 0 {
		return fmt.Errorf("loader needs at least one worker")
	}
	if c.Loader.RateLimit < 0 {
		return fmt.Errorf("loader rate limit must not be negative")
	}
	if c.StudyCacheSize < 0 {
		return fmt.Errorf("study cache size must not be negative")
	}
	return nil
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:   getLogLevel(),
		StatusAddr: "127.0.0.1:9291",
		Table:      "variants",
		Engine: Engine{
			Name:             EngineBadger,
			DBPath:           "/tmp/gtkv",
			ValueThreshold:   256,
			MaxTableSize:     int64(64 * MB),
			NumMemTables:     3,
			NumL0Tables:      4,
			NumL0TablesStall: 8,
			VlogFileSize:     int64(256 * MB),
			SyncWrite:        true,
			NumCompactors:    1,

			BlockCacheCapacity: ByteSize(8 * MB),
		},
		Lock: Lock{
			Duration:   NewDuration(60 * time.Second),
			Timeout:    NewDuration(30 * time.Second),
			MinBackoff: NewDuration(10 * time.Millisecond),
			MaxBackoff: NewDuration(500 * time.Millisecond),
		},
		Loader: Loader{
			Workers: 4,
		},
		StudyCacheSize: 64,
	}
}

func NewTestConfig() *Config {
	return &Config{
		LogLevel: getLogLevel(),
		Table:    "variants_test",
		Engine: Engine{
			Name:   EngineMem,
			DBPath: "",
		},
		Lock: Lock{
			Duration:   NewDuration(5 * time.Second),
			Timeout:    NewDuration(2 * time.Second),
			MinBackoff: NewDuration(time.Millisecond),
			MaxBackoff: NewDuration(20 * time.Millisecond),
		},
		Loader: Loader{
			Workers:     2,
			StrictCodec: true,
		},
		StudyCacheSize: 16,
	}
}

// LoadFile reads a TOML file over the defaults. Keys the config does not know are logged and otherwise ignored.
func LoadFile(path string) (*Config, error) {
	conf := NewDefaultConfig()
	meta, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, errors.Annotatef(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		log.Warnf("config %s contains undefined items: %s", path, strings.Join(keys, ", "))
	}
	return conf, nil
}
