package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.Nil(t, NewDefaultConfig().Validate())
	assert.Nil(t, NewTestConfig().Validate())
}

func TestValidate(t *testing.T) {
	conf := NewTestConfig()
	conf.Engine.Name = "hbase"
	assert.NotNil(t, conf.Validate())

	conf = NewTestConfig()
	conf.Engine.Name = EngineBadger
	assert.NotNil(t, conf.Validate())

	conf = NewTestConfig()
	conf.Lock.MaxBackoff = NewDuration(0)
	assert.NotNil(t, conf.Validate())

	conf = NewTestConfig()
	conf.Loader.Workers = 0
	assert.NotNil(t, conf.Validate())

	conf = NewTestConfig()
	conf.Table = ""
	assert.NotNil(t, conf.Validate())

	conf = NewTestConfig()
	conf.Loader.RateLimit = -1
	assert.NotNil(t, conf.Validate())
}

func TestLoadFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "gtkv_config")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "gtkv.toml")
	content := `
table = "1kg"
unknown-key = 3

[engine]
name = "leveldb"
db-path = "/data/gtkv"
block-cache-capacity = "32MiB"

[lock]
duration = "90s"
timeout = "5s"

[loader]
workers = 8
rate-limit = 2500.5
`
	require.Nil(t, ioutil.WriteFile(path, []byte(content), 0644))

	conf, err := LoadFile(path)
	require.Nil(t, err)
	assert.Equal(t, "1kg", conf.Table)
	assert.Equal(t, EngineLevelDB, conf.Engine.Name)
	assert.Equal(t, "/data/gtkv", conf.Engine.DBPath)
	assert.Equal(t, 90*time.Second, conf.Lock.Duration.Duration)
	assert.Equal(t, 5*time.Second, conf.Lock.Timeout.Duration)
	// Untouched keys keep their defaults.
	assert.Equal(t, 500*time.Millisecond, conf.Lock.MaxBackoff.Duration)
	assert.Equal(t, 8, conf.Loader.Workers)
	assert.Equal(t, 2500.5, conf.Loader.RateLimit)
	assert.Equal(t, ByteSize(32*MB), conf.Engine.BlockCacheCapacity)
	assert.Nil(t, conf.Validate())

	require.Nil(t, ioutil.WriteFile(path, []byte("[lock]\nduration = \"soon\"\n"), 0644))
	_, err = LoadFile(path)
	assert.NotNil(t, err)

	require.Nil(t, ioutil.WriteFile(path, []byte("[engine]\nblock-cache-capacity = \"lots\"\n"), 0644))
	_, err = LoadFile(path)
	assert.NotNil(t, err)
}

func TestByteSizeText(t *testing.T) {
	var b ByteSize
	require.Nil(t, b.UnmarshalText([]byte("1.5KiB")))
	assert.Equal(t, ByteSize(1536), b)
	text, err := ByteSize(8 * MB).MarshalText()
	require.Nil(t, err)
	assert.Equal(t, "8MiB", string(text))
}

func TestLoaderFlags(t *testing.T) {
	var fromFlags Loader
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fromFlags.DefineFlags(flags)
	require.Nil(t, flags.Parse([]string{"--workers", "12", "--strict-codec"}))

	conf := NewDefaultConfig()
	conf.Loader.RateLimit = 10
	conf.Loader.ApplyFlags(flags, &fromFlags)
	assert.Equal(t, 12, conf.Loader.Workers)
	assert.True(t, conf.Loader.StrictCodec)
	// Not given on the command line, so the configured value stays.
	assert.Equal(t, 10.0, conf.Loader.RateLimit)
}
