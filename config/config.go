// Package config loads the YAML configuration and optionally watches it
// for changes.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Data struct {
		URL      string        `yaml:"url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"data"`
	Model struct {
		WindowSize   int     `yaml:"window_size"`
		Horizon      int     `yaml:"horizon"`
		TestSplit    float64 `yaml:"test_split"`
		Epochs       int     `yaml:"epochs"`
		BatchSize    int     `yaml:"batch_size"`
		HiddenUnits  int     `yaml:"hidden_units"`
		LearningRate float64 `yaml:"learning_rate"`
	} `yaml:"model"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Default returns the documented defaults; Load overlays the file on top.
func Default() *Config {
	cfg := &Config{}
	cfg.Data.CacheTTL = 5 * time.Minute
	cfg.Model.WindowSize = 60
	cfg.Model.Horizon = 5
	cfg.Model.TestSplit = 0.2
	cfg.Model.Epochs = 12
	cfg.Model.BatchSize = 256
	cfg.Model.HiddenUnits = 16
	cfg.Model.LearningRate = 0.001
	cfg.Database.Path = "./data/stockcast.db"
	cfg.Http.Port = 8080
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Model.TestSplit <= 0 || cfg.Model.TestSplit >= 1 {
		cfg.Model.TestSplit = 0.2
	}
	return cfg, nil
}

// Watch reloads the file on change and passes the new config to onChange.
// It blocks until ctx is done. Reload errors keep the previous config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory: editors often replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if cfg, err := Load(path); err == nil {
				onChange(cfg)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
