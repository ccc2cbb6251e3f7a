package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfig = `
clientaddr: 127.0.0.1:9090
refresh: 30s
index: 3
verbose: true
users:
  - alice:30
  - bob:25
algorithm: ed25519
bad: [
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	require.Empty(t, cfg)

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("index: 3\nname: alice\n"), 0600))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, Config{"index": 3, "name": "alice"}, cfg)

	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))

	_, err = LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't parse config")

	_, err = LoadConfig(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't read config")
}

func TestWithConfig(t *testing.T) {
	cfg := Config{
		"clientaddr": "127.0.0.1:9090",
		"refresh":    "30s",
		"index":      3,
		"verbose":    true,
		"users":      []interface{}{"alice:30", "bob:25"},
		"single":     "carol:41",
		"config":     "/tmp/node",
		"bad":        "xx",
	}

	flags := WithConfig(fakeFlags{}, cfg)

	require.Equal(t, "127.0.0.1:9090", flags.String("clientaddr"))
	require.Equal(t, "default", flags.String("unknown"))
	require.Equal(t, 30*time.Second, flags.Duration("refresh"))
	require.Equal(t, time.Second, flags.Duration("bad"))
	require.Equal(t, time.Second, flags.Duration("unknown"))
	require.Equal(t, 3, flags.Int("index"))
	require.Equal(t, 1, flags.Int("bad"))
	require.Equal(t, 1, flags.Int("unknown"))
	require.True(t, flags.Bool("verbose"))
	require.False(t, flags.Bool("bad"))
	require.False(t, flags.Bool("unknown"))
	require.Equal(t, []string{"alice:30", "bob:25"}, flags.StringSlice("users"))
	require.Equal(t, []string{"carol:41"}, flags.StringSlice("single"))
	require.Equal(t, []string{"default"}, flags.StringSlice("unknown"))
	require.Equal(t, "/tmp/node", flags.Path("config"))
	require.Equal(t, "default", flags.Path("unknown"))

	// Flags set on the command line have the priority.
	flags = WithConfig(fakeFlags{set: true}, cfg)
	require.Equal(t, "default", flags.String("clientaddr"))
	require.Equal(t, 1, flags.Int("index"))
}

// -----------------------------------------------------------------------------
// Utility functions

// fakeFlags returns the same default value for every flag.
//
// - implements cli.Flags
type fakeFlags struct {
	set bool
}

func (f fakeFlags) IsSet(string) bool {
	return f.set
}

func (fakeFlags) String(string) string {
	return "default"
}

func (fakeFlags) StringSlice(string) []string {
	return []string{"default"}
}

func (fakeFlags) Duration(string) time.Duration {
	return time.Second
}

func (fakeFlags) Path(string) string {
	return "default"
}

func (fakeFlags) Int(string) int {
	return 1
}

func (fakeFlags) Bool(string) bool {
	return false
}
