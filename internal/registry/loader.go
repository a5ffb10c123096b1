// Package registry loads the models database: the set of models this
// deployment knows about, their capability flags, and tokenizer paths.
// The file's modification time doubles as the caps version clients use
// to decide when to refresh the discovery document.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Capability flags used in ModelRecord.FilterCaps.
const (
	CapCompletion = "completion"
	CapChat       = "chat"
)

// ModelRecord describes one model known to the deployment.
type ModelRecord struct {
	Name       string   `json:"name" yaml:"name" toml:"name"`
	ModelPath  string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	FilterCaps []string `json:"filter_caps" yaml:"filter_caps" toml:"filter_caps"`
	// ThirdParty marks models served by the cloud provider rather than
	// the local backend.
	ThirdParty bool `json:"third_party,omitempty" yaml:"third_party,omitempty" toml:"third_party,omitempty"`
}

// HasCap reports whether the record carries the capability flag.
func (r ModelRecord) HasCap(cap string) bool {
	for _, c := range r.FilterCaps {
		if c == cap {
			return true
		}
	}
	return false
}

type modelsFile struct {
	Models []ModelRecord `json:"models" yaml:"models" toml:"models"`
}

// DB is the loaded models database. Record order follows the file, so
// the first model with a capability is that capability's default.
type DB struct {
	mu      sync.RWMutex
	path    string
	records []ModelRecord
	byName  map[string]ModelRecord
}

// Load reads a models database file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty models db path")
	}
	db := &DB{path: path}
	if err := db.Reload(); err != nil {
		return nil, err
	}
	return db, nil
}

// Reload re-reads the backing file.
func (db *DB) Reload() error {
	b, err := os.ReadFile(db.path)
	if err != nil {
		return err
	}
	var f modelsFile
	switch ext := strings.ToLower(filepath.Ext(db.path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return err
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported models db extension: %s", ext)
	}
	byName := make(map[string]ModelRecord, len(f.Models))
	for _, rec := range f.Models {
		byName[rec.Name] = rec
	}
	db.mu.Lock()
	db.records = f.Models
	db.byName = byName
	db.mu.Unlock()
	return nil
}

// Record returns the record for name.
func (db *DB) Record(name string) (ModelRecord, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.byName[name]
	return rec, ok
}

// Names lists model names in file order.
func (db *DB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, len(db.records))
	for i, rec := range db.records {
		out[i] = rec.Name
	}
	return out
}

// Records returns a copy of all records in file order.
func (db *DB) Records() []ModelRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]ModelRecord(nil), db.records...)
}

// CapsVersion returns the backing file's mtime in unix seconds. If the
// file was edited the value moves and clients re-fetch the caps
// document. Zero when the file cannot be stat'd.
func (db *DB) CapsVersion() int64 {
	st, err := os.Stat(db.path)
	if err != nil {
		return 0
	}
	return st.ModTime().Unix()
}
