// Package config loads layered sabir configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, the
// project file .sabir/config.yaml, the user file in the XDG config directory,
// an explicit file, SABIR_* environment variables and finally overrides set by
// the caller (usually command-line flags).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/ngram"
	"github.com/adalundhe/sabir/core/storage"
)

// EnvPrefix prefixes every environment variable the manager reads.
const EnvPrefix = "SABIR_"

type Manager struct {
	config      atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	file        string
	overrides   *Config
	watchers    []func(*Config)
	watcherMu   sync.RWMutex
}

type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Train    TrainConfig    `yaml:"train"`
	Detector DetectorConfig `yaml:"detector"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type ModelConfig struct {
	Path      string `yaml:"path"`
	NGramSize int    `yaml:"ngram_size"`
	TableSize int    `yaml:"table_size"`
}

type TrainConfig struct {
	// Workers bounds concurrent language counting. Zero means GOMAXPROCS.
	Workers int      `yaml:"workers"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type DetectorConfig struct {
	CacheCounters int64         `yaml:"cache_counters"`
	CacheMaxCost  int64         `yaml:"cache_max_cost"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	Workers       int           `yaml:"workers"`
}

type StoreConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel returns the configured level, or info if it does not parse.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewManager returns a manager holding the defaults. dirs locates the user
// configuration file.
func NewManager(dirs *storage.Dirs) *Manager {
	m := &Manager{dirs: dirs, projectRoot: "."}
	m.config.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			NGramSize: ngram.DefaultSize,
			TableSize: model.DefaultTableSize,
		},
		Detector: DetectorConfig{
			CacheCounters: 1e5,
			CacheMaxCost:  64 << 20,
			CacheTTL:      10 * time.Minute,
		},
		Store: StoreConfig{
			CacheSize: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetProjectRoot sets the directory searched for .sabir/config.yaml.
func (m *Manager) SetProjectRoot(root string) {
	m.projectRoot = root
}

// SetFile adds an explicit configuration file. Unlike the project and user
// files it must exist.
func (m *Manager) SetFile(path string) {
	m.file = path
}

// SetOverrides sets values applied after every other source. Zero fields are
// ignored.
func (m *Manager) SetOverrides(o *Config) {
	m.overrides = o
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

// Load rebuilds the configuration from every source and publishes it. On error
// the previous configuration stays in place.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadYAMLFile(storage.ResolveProjectDirs(m.projectRoot).Config, cfg, false); err != nil {
		return err
	}
	if m.dirs != nil {
		if err := m.loadYAMLFile(m.dirs.ConfigFile(), cfg, false); err != nil {
			return err
		}
	}
	if m.file != "" {
		if err := m.loadYAMLFile(m.file, cfg, true); err != nil {
			return err
		}
	}
	if err := applyEnvironment(cfg); err != nil {
		return err
	}
	if m.overrides != nil {
		Overlay(cfg, m.overrides)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

func (m *Manager) loadYAMLFile(path string, cfg *Config, required bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return sberrors.Config("config", "cannot read config file", err).WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return sberrors.Config("config", "invalid config file", err).WithContext("path", path)
	}
	return nil
}

func applyEnvironment(cfg *Config) error {
	strs := map[string]*string{
		"MODEL_PATH": &cfg.Model.Path,
		"STORE_PATH": &cfg.Store.Path,
		"LOG_LEVEL":  &cfg.Log.Level,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MODEL_NGRAM_SIZE": &cfg.Model.NGramSize,
		"MODEL_TABLE_SIZE": &cfg.Model.TableSize,
		"TRAIN_WORKERS":    &cfg.Train.Workers,
		"DETECTOR_WORKERS": &cfg.Detector.Workers,
		"STORE_CACHE_SIZE": &cfg.Store.CacheSize,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = n
	}

	if v := os.Getenv(EnvPrefix + "DETECTOR_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("DETECTOR_CACHE_TTL", v, err)
		}
		cfg.Detector.CacheTTL = d
	}
	if v := os.Getenv(EnvPrefix + "TRAIN_INCLUDE"); v != "" {
		cfg.Train.Include = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvPrefix + "TRAIN_EXCLUDE"); v != "" {
		cfg.Train.Exclude = strings.Split(v, ",")
	}
	return nil
}

func envError(name, value string, err error) error {
	return sberrors.Config("config", "invalid environment value", err).
		WithContext("var", EnvPrefix+name).
		WithContext("value", value)
}

// Validate checks ranges that the builder and detector would otherwise reject
// later.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Model.NGramSize < 1 || c.Model.NGramSize > ngram.MaxSize {
		return sberrors.Configf(op, "model.ngram_size %d out of range [1, %d]", c.Model.NGramSize, ngram.MaxSize)
	}
	if !ngram.IsPowerOfTwo(c.Model.TableSize) || c.Model.TableSize > model.MaxTableSize {
		return sberrors.Configf(op, "model.table_size %d is not a power of two in [1, %d]", c.Model.TableSize, model.MaxTableSize)
	}
	if c.Train.Workers < 0 || c.Detector.Workers < 0 {
		return sberrors.Configf(op, "worker counts must not be negative")
	}
	if c.Detector.CacheCounters < 0 || c.Detector.CacheMaxCost < 0 || c.Detector.CacheTTL < 0 {
		return sberrors.Configf(op, "detector cache settings must not be negative")
	}
	if c.Store.CacheSize < 1 {
		return sberrors.Configf(op, "store.cache_size %d must be at least 1", c.Store.CacheSize)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return sberrors.Config(op, fmt.Sprintf("log.level %q is not a level", c.Log.Level), err)
	}
	return nil
}

// ModelPath returns the configured model file, falling back to the "default"
// model in the data directory.
func (m *Manager) ModelPath() (string, error) {
	if p := m.Get().Model.Path; p != "" {
		return p, nil
	}
	if m.dirs == nil {
		return "", sberrors.Config("config", "no model path configured", nil)
	}
	return m.dirs.ModelPath("default")
}

// StorePath returns the configured store database, falling back to the data
// directory.
func (m *Manager) StorePath() (string, error) {
	if p := m.Get().Store.Path; p != "" {
		return p, nil
	}
	if m.dirs == nil {
		return "", sberrors.Config("config", "no store path configured", nil)
	}
	return m.dirs.StorePath(), nil
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}
