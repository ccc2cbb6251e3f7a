package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/app/users"
	"go.dedis.ch/certkv/core/certification"
	"go.dedis.ch/certkv/core/certification/local"
	"go.dedis.ch/certkv/core/store/certified"
	"go.dedis.ch/certkv/core/verify"
	"go.dedis.ch/certkv/internal/testing/fake"
	"golang.org/x/xerrors"
)

var subject = []byte("users")

func init() {
	getTracer = fake.GetTracerEmpty
}

func TestCertverify_TracerFailure(t *testing.T) {
	getTracer = fake.GetTracerWithError
	defer func() { getTracer = fake.GetTracerEmpty }()

	srv, srvc := makeServer(t, false)
	defer srv.Close()

	_, err := srvc.SetUser(users.NewUser("Alice", 30))
	require.NoError(t, err)

	out := new(bytes.Buffer)

	err = runWithCfg([]string{"certverify", "get", "--addr", srv.URL, "--index", "1"}, out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "user 1: Alice (30) verified")
}

func TestCertverify_Get(t *testing.T) {
	srv, srvc := makeServer(t, false)
	defer srv.Close()

	_, err := srvc.SetUser(users.NewUser("Alice", 30))
	require.NoError(t, err)

	rootKey, err := srvc.GetRootKey()
	require.NoError(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "rootkey.hex")
	require.NoError(t, os.WriteFile(file, []byte(hex.EncodeToString(rootKey)+"\n"), 0600))

	out := new(bytes.Buffer)

	err = runWithCfg([]string{"certverify", "get", "--addr", srv.URL,
		"--index", "1", "--rootkey", file, "--subject", "users"}, out)
	require.NoError(t, err)
	require.Regexp(t, `^user 1: Alice \(30\) verified, certified at .+\n$`, out.String())

	// The flags are read from the configuration file.
	cfg := filepath.Join(dir, "certverify.yml")
	data := "addr: " + srv.URL + "\nrootkey: " + file + "\nsubject: users\nmaxskew: 1m\n"
	require.NoError(t, os.WriteFile(cfg, []byte(data), 0600))

	out.Reset()

	err = runWithCfg([]string{"certverify", "--config", cfg, "get", "--index", "1"}, out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "user 1: Alice (30) verified")

	err = runWithCfg([]string{"certverify", "get", "--addr", srv.URL, "--index", "2"}, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 404")
}

func TestCertverify_Rejected(t *testing.T) {
	srv, srvc := makeServer(t, true)
	defer srv.Close()

	_, err := srvc.SetUser(users.NewUser("Alice", 30))
	require.NoError(t, err)

	err = runWithCfg([]string{"certverify", "get", "--addr", srv.URL, "--index", "1"}, new(bytes.Buffer))
	require.True(t, xerrors.Is(err, verify.ErrValueMismatch), err)
}

func TestCertverify_Demo(t *testing.T) {
	srv, srvc := makeServer(t, false)
	defer srv.Close()

	out := new(bytes.Buffer)

	err := runWithCfg([]string{"certverify", "demo", "--addr", srv.URL, "--count", "3"}, out)
	require.NoError(t, err)
	require.Equal(t, 3, srvc.Len())
	require.Contains(t, out.String(), "inserted user 3: ")
	require.Contains(t, out.String(), " verified, certified at ")

	err = runWithCfg([]string{"certverify", "demo", "--count", "0"}, out)
	require.EqualError(t, err, "invalid count 0")

	err = runWithCfg([]string{"certverify", "demo", "--addr", "http://127.0.0.1:0"}, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't set user")
}

func TestCertverify_Failures(t *testing.T) {
	out := new(bytes.Buffer)

	err := runWithCfg([]string{"certverify", "get"}, out)
	require.EqualError(t, err, "invalid index 0")

	err = runWithCfg([]string{"certverify", "get", "--index", "1", "--rootkey", "/does/not/exist"}, out)
	require.EqualError(t, err, "--subject is required with --rootkey")

	err = runWithCfg([]string{"certverify", "get", "--index", "1", "--subject", "users",
		"--rootkey", "/does/not/exist"}, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't read root key: ")

	file := filepath.Join(t.TempDir(), "rootkey.hex")
	require.NoError(t, os.WriteFile(file, []byte("zz"), 0600))

	err = runWithCfg([]string{"certverify", "get", "--index", "1", "--subject", "users",
		"--rootkey", file}, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid root key: ")

	err = runWithCfg([]string{"certverify", "--config", file, "get", "--index", "1"}, out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't load config: ")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeServer(t *testing.T, tamper bool) (*httptest.Server, *users.Service) {
	authority, err := local.NewAuthority()
	require.NoError(t, err)

	publisher := certification.NewSubjectPublisher(authority, subject)
	store := certified.NewStore(certified.WithPublisher(publisher))

	srvc, err := users.NewService(store, authority, subject)
	require.NoError(t, err)

	handler := users.NewUsersHandler(srvc)

	mux := http.NewServeMux()
	mux.HandleFunc(users.RootKeyPath, users.NewRootKeyHandler(srvc))
	mux.HandleFunc(users.UsersPath, handler)
	mux.HandleFunc(users.UsersPath+"/", func(w http.ResponseWriter, r *http.Request) {
		if !tamper {
			handler(w, r)
			return
		}

		rec := httptest.NewRecorder()
		handler(rec, r)

		var resp users.GetResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		resp.Value[len(resp.Value)-1] ^= 0x01

		json.NewEncoder(w).Encode(resp)
	})

	return httptest.NewServer(mux), srvc
}
