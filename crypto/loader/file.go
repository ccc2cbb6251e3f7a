package loader

import (
	"os"

	"golang.org/x/xerrors"
)

// fileLoader keeps the key in a single file readable only by the owner.
//
// - implements loader.Loader
type fileLoader struct {
	path string

	readFn  func(path string) ([]byte, error)
	writeFn func(path string, data []byte, perm os.FileMode) error
	statFn  func(path string) (os.FileInfo, error)
}

// NewFileLoader creates a new loader using the file at the given path.
func NewFileLoader(path string) Loader {
	return fileLoader{
		path:    path,
		readFn:  os.ReadFile,
		writeFn: os.WriteFile,
		statFn:  os.Stat,
	}
}

// LoadOrCreate implements loader.Loader. A new file is created with the
// permission 0400.
func (l fileLoader) LoadOrCreate(g Generator) ([]byte, error) {
	_, err := l.statFn(l.path)
	if err == nil {
		data, err := l.Load()
		if err != nil {
			return nil, xerrors.Errorf("failed to load file: %v", err)
		}

		return data, nil
	}

	if !os.IsNotExist(err) {
		return nil, xerrors.Errorf("while checking file: %v", err)
	}

	data, err := g.Generate()
	if err != nil {
		return nil, xerrors.Errorf("generator failed: %v", err)
	}

	err = l.writeFn(l.path, data, 0400)
	if err != nil {
		return nil, xerrors.Errorf("while writing file: %v", err)
	}

	return data, nil
}

// Load implements loader.Loader.
func (l fileLoader) Load() ([]byte, error) {
	data, err := l.readFn(l.path)
	if err != nil {
		return nil, xerrors.Errorf("while reading file: %v", err)
	}

	return data, nil
}
