package main

import (
	"bytes"
	"encoding/hex"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/app/users/client"
)

func TestCertkv_Scenario(t *testing.T) {
	t.Setenv("JAEGER_DISABLED", "true")

	dir := t.TempDir()

	err := run([]string{os.Args[0], "key", "new", "--save", filepath.Join(dir, "authority.key")})
	require.NoError(t, err)

	sigs := make(chan os.Signal)
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()

		args := []string{os.Args[0], "--config", dir, "start", "--refresh", "1h"}

		err := runWithCfg(args, config{Channel: sigs, Writer: io.Discard})
		require.NoError(t, err)
	}()

	defer func() {
		// Simulate a Ctrl+C
		close(sigs)
		wg.Wait()
	}()

	waitDaemon(t, dir)

	out := exec(t, dir, "user", "set", "--user", "Alice:30", "--user", "Bob:25")
	require.Contains(t, out, "user 1: Alice (30)")
	require.Contains(t, out, "user 2: Bob (25)")

	out = exec(t, dir, "user", "get", "--index", "2")
	require.Contains(t, out, "user 2: Bob (25) certified at ")

	out = exec(t, dir, "authority", "pubkey")
	rootKey, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	out = exec(t, dir, "proxy", "start", "--clientaddr", "127.0.0.1:0")
	addr := regexp.MustCompile(`started proxy server on (\S+)`).FindStringSubmatch(out)
	require.Len(t, addr, 2)

	exec(t, dir, "user", "http")

	cl := client.NewClient("http://"+addr[1], client.WithRootKey(rootKey),
		client.WithSubject([]byte("users")))

	user, _, err := cl.GetUser(1)
	require.NoError(t, err)
	require.Equal(t, users.NewUser("Alice", 30), user)

	index, err := cl.SetUser(users.NewUser("Carol", 41))
	require.NoError(t, err)
	require.Equal(t, uint64(3), index)

	// A command error is returned to the client.
	err = runWithCfg([]string{os.Args[0], "--config", dir, "user", "get", "--index", "9"},
		config{Writer: io.Discard})
	require.Error(t, err)
	require.Contains(t, err.Error(), "command error: couldn't get user: ")

	err = runWithCfg([]string{os.Args[0], "--config", dir, "user", "get"},
		config{Writer: io.Discard})
	require.EqualError(t, err, `Required flag "index" not set`)
}

// -----------------------------------------------------------------------------
// Utility functions

func exec(t *testing.T, dir string, args ...string) string {
	buffer := new(bytes.Buffer)

	err := runWithCfg(append([]string{os.Args[0], "--config", dir}, args...),
		config{Writer: buffer})
	require.NoError(t, err)

	return buffer.String()
}

func waitDaemon(t *testing.T, dir string) {
	num := 100
	path := filepath.Join(dir, "daemon.sock")

	for i := 0; i < num; i++ {
		_, err := os.Stat(path)
		if err == nil {
			conn, err := net.Dial("unix", path)
			if err == nil {
				conn.Close()
				return
			}
		}

		time.Sleep(30 * time.Millisecond)
	}

	t.Fatal("timeout")
}
