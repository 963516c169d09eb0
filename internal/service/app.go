// Package service assembles the application services the commands share
// from configuration.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/security"
)

// Datatype is one entry of a datatype registry file.
type Datatype struct {
	Extension      string   `yaml:"extension"`
	Parent         string   `yaml:"parent"`
	Converters     []string `yaml:"converters"`
	CompositeFiles []string `yaml:"composite_files"`
}

type registryFile struct {
	Datatypes []Datatype `yaml:"datatypes"`
}

var builtinDatatypes = []Datatype{
	{Extension: "txt", Parent: "data"},
	{Extension: "tabular", Parent: "txt"},
	{Extension: "interval", Parent: "tabular", Converters: []string{"bed"}},
	{Extension: "bed", Parent: "interval"},
	{Extension: "csv", Parent: "txt", Converters: []string{"tabular"}},
	{Extension: "fasta", Parent: "txt"},
	{Extension: "fastqsanger", Parent: "txt"},
	{Extension: "bam", Parent: "data", CompositeFiles: []string{"bam", "bai"}},
}

// Closer releases what NewApp opened.
type Closer func() error

// NewApp builds the application services described by cfg. The datastore
// is the Galaxy database when a DSN is configured and an empty in-memory
// store otherwise.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*params.App, Closer, error) {
	enc, err := NewEncoder(cfg.Security.IDSecret)
	if err != nil {
		return nil, nil, err
	}
	registry, err := LoadDatatypes(cfg.Datatypes.Registry)
	if err != nil {
		return nil, nil, err
	}
	app := &params.App{
		Security:  enc,
		Datatypes: registry,
		Logger:    logger,
	}

	closer := Closer(func() error { return nil })
	if cfg.Database.DSN != "" {
		store, err := model.OpenPGStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		app.Datastore = store
		closer = store.Close
	} else {
		app.Datastore = model.NewMemoryStore()
	}
	return app, closer, nil
}

// NewEncoder returns the Galaxy compatible encoder for secret, or ids in
// plain decimal when secret is empty.
func NewEncoder(secret string) (security.IDEncoder, error) {
	if secret == "" {
		return security.PlainEncoder{}, nil
	}
	return security.NewBlowfishEncoder(secret)
}

// LoadDatatypes reads a datatype registry file. An empty path yields the
// built in datatypes.
func LoadDatatypes(path string) (*model.SimpleRegistry, error) {
	entries := builtinDatatypes
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read datatypes: %w", err)
		}
		var file registryFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse datatypes: %w", err)
		}
		entries = file.Datatypes
	}

	registry := model.NewSimpleRegistry()
	for _, dt := range entries {
		if dt.Extension == "" {
			return nil, fmt.Errorf("datatype without extension")
		}
		parent := dt.Parent
		if parent == "" {
			parent = "data"
		}
		registry.AddDatatype(dt.Extension, parent)
		for _, target := range dt.Converters {
			registry.AddConverter(dt.Extension, target)
		}
		if len(dt.CompositeFiles) > 0 {
			registry.AddComposite(dt.Extension, dt.CompositeFiles...)
		}
	}
	return registry, nil
}
