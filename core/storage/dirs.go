// Package storage resolves where sabir keeps configuration, models and caches,
// following the XDG base directory layout.
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
)

const appName = "sabir"

const (
	// ConfigFileName is the name of every layered configuration file.
	ConfigFileName = "config.yaml"

	// ModelExt is the extension of model files in the models directory.
	ModelExt = model.FileExt

	storeFileName = "models.db"
)

// Dirs holds the platform-native base directories.
type Dirs struct {
	Config string // config.yaml
	Data   string // trained models and the model store
	Cache  string // regenerable data
	State  string // logs
}

// ProjectDirs holds project-local paths.
type ProjectDirs struct {
	Root   string // .sabir/
	Config string // .sabir/config.yaml
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
	globalDirsErr  error
)

// ResolveDirs returns platform-appropriate directories.
// Results are cached after first call.
func ResolveDirs() (*Dirs, error) {
	globalDirsOnce.Do(func() {
		globalDirs, globalDirsErr = resolveDirsImpl()
	})
	return globalDirs, globalDirsErr
}

func resolveDirsImpl() (*Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, sberrors.Config("storage", "cannot resolve home directory", err)
	}
	def := platformDefaults(home)
	dirs := &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", def.Config),
		Data:   resolveDir("XDG_DATA_HOME", def.Data),
		Cache:  resolveDir("XDG_CACHE_HOME", def.Cache),
		State:  resolveDir("XDG_STATE_HOME", def.State),
	}
	return dirs, nil
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	return fallback
}

// ResolveProjectDirs returns project-local directories for the given project root.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	root := filepath.Join(projectRoot, "."+appName)
	return &ProjectDirs{
		Root:   root,
		Config: filepath.Join(root, ConfigFileName),
	}
}

// EnsureDir creates a directory with the specified permissions if it doesn't exist.
// Uses 0700 when perm is zero.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0700
	}
	return os.MkdirAll(path, perm)
}

// TempDir returns an OS-managed temp directory with a sabir prefix.
func TempDir(pattern string) (string, error) {
	if pattern == "" {
		pattern = appName + "-*"
	} else if pattern[len(pattern)-1] != '*' {
		pattern = appName + "-" + pattern + "-*"
	} else {
		pattern = appName + "-" + pattern
	}
	return os.MkdirTemp("", pattern)
}

// ValidateModelName rejects names that are empty, hidden or would escape the
// models directory.
func ValidateModelName(name string) error {
	switch {
	case name == "":
		return sberrors.Config("storage", "empty model name", nil)
	case strings.HasPrefix(name, "."):
		return sberrors.Config("storage", "model name must not start with a dot", nil).WithContext("name", name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return sberrors.Config("storage", "model name must not contain path separators", nil).WithContext("name", name)
	}
	return nil
}

// ConfigFile returns the user configuration file path.
func (d *Dirs) ConfigFile() string {
	return filepath.Join(d.Config, ConfigFileName)
}

// ConfigDir returns the config subdirectory path.
func (d *Dirs) ConfigDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Config}, subpath...)...)
}

// DataDir returns the data subdirectory path.
func (d *Dirs) DataDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Data}, subpath...)...)
}

// CacheDir returns the cache subdirectory path.
func (d *Dirs) CacheDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Cache}, subpath...)...)
}

// StateDir returns the state subdirectory path.
func (d *Dirs) StateDir(subpath ...string) string {
	return filepath.Join(append([]string{d.State}, subpath...)...)
}

// ModelsDir returns the directory holding named model files.
func (d *Dirs) ModelsDir() string {
	return d.DataDir("models")
}

// ModelPath returns the file of the named model.
func (d *Dirs) ModelPath(name string) (string, error) {
	if err := ValidateModelName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.ModelsDir(), name+ModelExt), nil
}

// StorePath returns the model store database file.
func (d *Dirs) StorePath() string {
	return d.DataDir(storeFileName)
}

// LogDir returns the log directory.
func (d *Dirs) LogDir() string {
	return d.StateDir("logs")
}

// EnsureAll creates all standard directories.
func (d *Dirs) EnsureAll() error {
	for _, dir := range []string{d.Config, d.Data, d.ModelsDir(), d.Cache, d.State, d.LogDir()} {
		if err := EnsureDir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
