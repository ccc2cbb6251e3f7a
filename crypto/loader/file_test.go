package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/certkv/internal/testing/fake"
)

func TestFileLoader_LoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.key")

	generator := fakeGenerator{calls: fake.NewCall()}

	loader := NewFileLoader(path).(fileLoader)

	data, err := loader.LoadOrCreate(generator)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
	require.Equal(t, 1, generator.calls.Len())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0400), info.Mode().Perm())

	data, err = loader.LoadOrCreate(generator)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
	require.Equal(t, 1, generator.calls.Len())

	data, err = loader.Load()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestFileLoader_Failures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.key")

	loader := NewFileLoader(path).(fileLoader)

	_, err := loader.LoadOrCreate(fakeGenerator{err: fake.GetError()})
	require.EqualError(t, err, fake.Err("generator failed"))

	_, err = loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "while reading file: ")

	loader.writeFn = func(string, []byte, os.FileMode) error {
		return fake.GetError()
	}
	_, err = loader.LoadOrCreate(fakeGenerator{})
	require.EqualError(t, err, fake.Err("while writing file"))

	loader.statFn = func(string) (os.FileInfo, error) {
		return nil, fake.GetError()
	}
	_, err = loader.LoadOrCreate(fakeGenerator{})
	require.EqualError(t, err, fake.Err("while checking file"))

	loader.statFn = func(string) (os.FileInfo, error) {
		return nil, nil
	}
	loader.readFn = func(string) ([]byte, error) {
		return nil, fake.GetError()
	}
	_, err = loader.LoadOrCreate(fakeGenerator{})
	require.EqualError(t, err, fake.Err("failed to load file: while reading file"))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeGenerator struct {
	calls *fake.Call
	err   error
}

func (g fakeGenerator) Generate() ([]byte, error) {
	if g.calls != nil {
		g.calls.Add("Generate")
	}

	return []byte{1, 2, 3}, g.err
}
