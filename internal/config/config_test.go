package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:5000", cfg.Server.Addr())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
db_dir = "parts"

[server]
port = 8080
handle_cors = true
`), 0644))

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "parts", cfg.DBDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.HandleCORS)
	assert.Equal(t, "/monkey-api", cfg.Server.Prefix, "unset keys keep defaults")
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 8080\n"), 0644))
	t.Setenv("KIPLM_SERVER_PORT", "9090")
	t.Setenv("KIPLM_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KIPLM_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	require.NoError(t, flags.Parse([]string{"--port", "7000"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("server.port", flags.Lookup("port")))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"port out of range", "[server]\nport = 70000\n"},
		{"prefix without slash", "[server]\nprefix = \"api\"\n"},
		{"unknown log level", "[log]\nlevel = \"loud\"\n"},
		{"empty db dir", "db_dir = \"\"\n"},
		{"malformed toml", "db_dir = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.toml), 0644))

			_, err := Load(viper.New(), path)
			assert.Error(t, err)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	require.NoError(t, WriteDefault(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `db_dir = "db"`)
	assert.Contains(t, string(data), "[server]")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
