package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	DataDir          string `yaml:"data_dir"`
	ChunkSize        int    `yaml:"chunk_size"`
	ColumnCacheBytes int64  `yaml:"column_cache_bytes"`
	RowGroupSize     int    `yaml:"row_group_size"`
	LogLevel         string `yaml:"log_level"`
	SeqURL           string `yaml:"seq_url"`
}

func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DataDir:          "data",
		ChunkSize:        8192,
		ColumnCacheBytes: 256 << 20,
		RowGroupSize:     122880,
		LogLevel:         "info",
	}
}

// Load reads a YAML file over the defaults. An empty path gives the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr must be set"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.RowGroupSize <= 0 {
		errs = append(errs, fmt.Errorf("row_group_size must be positive, got %d", c.RowGroupSize))
	}
	return errors.Join(errs...)
}

func (c Config) MetadataDir() string { return filepath.Join(c.DataDir, "metadata") }

func (c Config) TablesDir() string { return filepath.Join(c.DataDir, "tables") }
