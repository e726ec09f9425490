// Package config loads Config: db backend selection, RRF
// weights, the default vault, and module selectors, from defaults, an
// optional YAML file, and CORPUSVAULT_* environment variable overrides, in
// that precedence order (spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/corpusvault/corpusvault/internal/errkind"
)

// Config is corpusvault's full configuration surface (spec.md §6).
type Config struct {
	// DBType selects the Store backend: "sqlite" (store/sqlitevec, default)
	// or "memory" (store/memvec).
	DBType string `yaml:"db_type" json:"db_type"`

	// DBName is the database file name, resolved relative to DataDir.
	DBName string `yaml:"db_name" json:"db_name"`

	// DataDir is the directory the Store's files live under.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// DefaultVault is the vault name used when a caller does not specify one.
	DefaultVault string `yaml:"default_vault" json:"default_vault"`

	// WeightFTS/WeightVec/K configure RRF fusion (spec.md §4.3 step 4).
	WeightFTS float64 `yaml:"weight_fts" json:"weight_fts"`
	WeightVec float64 `yaml:"weight_vec" json:"weight_vec"`
	K         int     `yaml:"k" json:"k"`

	// Module selectors, resolved by package registry into concrete
	// segment.Segmenter / embed.Embedder / rerank.Reranker / chunk.Splitter
	// implementations (spec.md §9 "subclass registry").
	Segmenter string `yaml:"segmenter" json:"segmenter"`
	Embedder  string `yaml:"embedder" json:"embedder"`
	Reranker  string `yaml:"reranker" json:"reranker"`
	Splitter  string `yaml:"splitter" json:"splitter"`

	// LogLevel is one of debug/info/warn/error (spec.md §6 ambient logging).
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFile, if set, additionally writes JSON logs to this path.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// DefaultDBNameSQLite is "database.db" for the sqlite backend and
// DefaultDBNameMemory is "database.ddb" for the memory backend, per spec.md §6.
const (
	DefaultDBNameSQLite = "database.db"
	DefaultDBNameMemory = "database.ddb"
)

// New returns the spec.md §6 defaults.
func New() *Config {
	return &Config{
		DBType:       "sqlite",
		DBName:       DefaultDBNameSQLite,
		DataDir:      ".corpusvault",
		DefaultVault: "Core",
		WeightFTS:    1.0,
		WeightVec:    1.0,
		K:            60,
		Segmenter:    "code",
		Embedder:     "static",
		Reranker:     "noop",
		Splitter:     "text",
		LogLevel:     "info",
	}
}

// Load resolves configuration from defaults, an optional
// "corpusvault.yaml"/"corpusvault.yml" file in dir, then CORPUSVAULT_*
// environment variables, in increasing precedence. There is no per-user
// config file tier: only dir is searched for a file.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if cfg.DBName == DefaultDBNameSQLite && cfg.DBType == "memory" {
		cfg.DBName = DefaultDBNameMemory
	}

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(dir, cfg.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errkind.Wrap(errkind.Usage, fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"corpusvault.yaml", "corpusvault.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return c.loadYAML(path)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errkind.Wrap(errkind.Usage, fmt.Errorf("failed to read config file %s: %w", path, err))
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errkind.Wrap(errkind.Usage, fmt.Errorf("failed to parse config file %s: %w", path, err))
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.DBType != "" {
		c.DBType = other.DBType
	}
	if other.DBName != "" {
		c.DBName = other.DBName
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.DefaultVault != "" {
		c.DefaultVault = other.DefaultVault
	}
	if other.WeightFTS != 0 {
		c.WeightFTS = other.WeightFTS
	}
	if other.WeightVec != 0 {
		c.WeightVec = other.WeightVec
	}
	if other.K != 0 {
		c.K = other.K
	}
	if other.Segmenter != "" {
		c.Segmenter = other.Segmenter
	}
	if other.Embedder != "" {
		c.Embedder = other.Embedder
	}
	if other.Reranker != "" {
		c.Reranker = other.Reranker
	}
	if other.Splitter != "" {
		c.Splitter = other.Splitter
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORPUSVAULT_DB_TYPE"); v != "" {
		c.DBType = v
	}
	if v := os.Getenv("CORPUSVAULT_DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("CORPUSVAULT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CORPUSVAULT_DEFAULT_VAULT"); v != "" {
		c.DefaultVault = v
	}
	if v := os.Getenv("CORPUSVAULT_WEIGHT_FTS"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.WeightFTS = w
		}
	}
	if v := os.Getenv("CORPUSVAULT_WEIGHT_VEC"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.WeightVec = w
		}
	}
	if v := os.Getenv("CORPUSVAULT_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.K = k
		}
	}
	if v := os.Getenv("CORPUSVAULT_SEGMENTER"); v != "" {
		c.Segmenter = v
	}
	if v := os.Getenv("CORPUSVAULT_EMBEDDER"); v != "" {
		c.Embedder = v
	}
	if v := os.Getenv("CORPUSVAULT_RERANKER"); v != "" {
		c.Reranker = v
	}
	if v := os.Getenv("CORPUSVAULT_SPLITTER"); v != "" {
		c.Splitter = v
	}
	if v := os.Getenv("CORPUSVAULT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CORPUSVAULT_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// Validate checks invariants Load must enforce before returning a Config.
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("db_type must be \"sqlite\" or \"memory\", got %q", c.DBType)
	}
	if c.WeightFTS < 0 || c.WeightVec < 0 {
		return fmt.Errorf("weight_fts/weight_vec must be >= 0")
	}
	if c.K <= 0 {
		return fmt.Errorf("k must be > 0")
	}
	if strings.TrimSpace(c.DefaultVault) == "" {
		return fmt.Errorf("default_vault must not be empty")
	}
	return nil
}

// DBPath returns the resolved path to the Store's database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBName)
}
