package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/model"
	"github.com/galaxyproject/galaxy-params/internal/security"
)

func TestLoadDatatypes_Builtin(t *testing.T) {
	r, err := LoadDatatypes("")
	if err != nil {
		t.Fatalf("Failed to load datatypes: %v", err)
	}
	if !r.IsSubtype("bed", "tabular") {
		t.Error("Expected bed to be a tabular subtype")
	}
	if r.IsSubtype("fasta", "tabular") {
		t.Error("Expected fasta not to be a tabular subtype")
	}
	if targets := r.ConverterTargets("csv"); len(targets) != 1 || targets[0] != "tabular" {
		t.Errorf("Expected csv to convert to tabular, got %v", targets)
	}
}

func TestLoadDatatypes_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datatypes.yml")
	data := []byte(`datatypes:
  - extension: vcf
  - extension: vcf_bgzip
    parent: vcf
    composite_files: [vcf_bgzip, tbi]
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write registry: %v", err)
	}
	r, err := LoadDatatypes(path)
	if err != nil {
		t.Fatalf("Failed to load datatypes: %v", err)
	}
	if !r.IsSubtype("vcf_bgzip", "vcf") {
		t.Error("Expected vcf_bgzip to be a vcf subtype")
	}
	if files := r.WritableFiles("vcf_bgzip"); len(files) != 2 {
		t.Errorf("Expected two composite files, got %v", files)
	}

	os.WriteFile(path, []byte("datatypes:\n  - parent: data\n"), 0644)
	if _, err := LoadDatatypes(path); err == nil {
		t.Error("Expected error for datatype without extension")
	}
}

func TestNewApp(t *testing.T) {
	cfg := &config.Config{}
	app, closer, err := NewApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	defer closer()
	if _, ok := app.Datastore.(*model.MemoryStore); !ok {
		t.Errorf("Expected memory store, got %T", app.Datastore)
	}
	if _, ok := app.Security.(security.PlainEncoder); !ok {
		t.Errorf("Expected plain encoder, got %T", app.Security)
	}

	cfg.Security.IDSecret = "a-secret"
	app, _, err = NewApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	if _, ok := app.Security.(*security.BlowfishEncoder); !ok {
		t.Errorf("Expected blowfish encoder, got %T", app.Security)
	}
}
