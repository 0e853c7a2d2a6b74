// Package envprovider mediates every lookup of an environment variable or
// well-known file path so tests can override ambient machine state without
// mutating the real process environment. Core packages must never call
// os.Getenv or os.ReadFile directly; they take a Provider instead.
package envprovider

import (
	"os"
	"time"
)

// Provider abstracts environment variable and filesystem lookups used by
// Application Default Credentials discovery (spec C9) and the executable
// and file subject-token sources (spec C5).
type Provider interface {
	// LookupEnv mirrors os.LookupEnv.
	LookupEnv(key string) (string, bool)
	// Getenv mirrors os.Getenv.
	Getenv(key string) string
	// ReadFile mirrors os.ReadFile.
	ReadFile(path string) ([]byte, error)
	// Stat reports whether path exists.
	Stat(path string) (os.FileInfo, error)
	// UserHomeDir mirrors os.UserHomeDir.
	UserHomeDir() (string, error)
}

// OS is the default Provider backed by the real operating system.
type OS struct{}

func (OS) LookupEnv(key string) (string, bool)     { return os.LookupEnv(key) }
func (OS) Getenv(key string) string                { return os.Getenv(key) }
func (OS) ReadFile(path string) ([]byte, error)    { return os.ReadFile(path) }
func (OS) Stat(path string) (os.FileInfo, error)   { return os.Stat(path) }
func (OS) UserHomeDir() (string, error)            { return os.UserHomeDir() }

// Map is an in-memory Provider for tests. Env holds environment variables;
// Files holds file contents keyed by path; Home is returned by
// UserHomeDir.
type Map struct {
	Env   map[string]string
	Files map[string][]byte
	Home  string
}

func NewMap() *Map {
	return &Map{Env: map[string]string{}, Files: map[string][]byte{}}
}

func (m *Map) LookupEnv(key string) (string, bool) {
	v, ok := m.Env[key]
	return v, ok
}

func (m *Map) Getenv(key string) string {
	return m.Env[key]
}

func (m *Map) ReadFile(path string) ([]byte, error) {
	b, ok := m.Files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return b, nil
}

func (m *Map) Stat(path string) (os.FileInfo, error) {
	if _, ok := m.Files[path]; !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return fakeFileInfo(path), nil
}

func (m *Map) UserHomeDir() (string, error) {
	if m.Home == "" {
		return "", os.ErrNotExist
	}
	return m.Home, nil
}

type fakeFileInfo string

func (f fakeFileInfo) Name() string      { return string(f) }
func (f fakeFileInfo) Size() int64       { return 0 }
func (f fakeFileInfo) Mode() os.FileMode { return 0o644 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool       { return false }
func (f fakeFileInfo) Sys() interface{}  { return nil }
