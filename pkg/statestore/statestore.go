/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package statestore persists small JSON documents across agent
// restarts, e.g. usage baselines for backends that only expose
// instantaneous gauges.  Loss of the store is degraded operation, not
// failure: consumers must reinitialize from the backend.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Store reads and writes named JSON documents under a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// New returns a store over the real filesystem.
func New(dir string) *Store {
	return NewWithFs(afero.NewOsFs(), dir)
}

// NewWithFs returns a store over the given filesystem, e.g. an
// in-memory one for tests.
func NewWithFs(fs afero.Fs, dir string) *Store {
	return &Store{
		fs:  fs,
		dir: dir,
	}
}

// path derives the document's filename.  Names are sanitized so callers
// can safely embed UUIDs and period stamps.
func (s *Store) path(name string) string {
	replacer := strings.NewReplacer("/", "-", string(filepath.Separator), "-")

	return filepath.Join(s.dir, replacer.Replace(name)+".json")
}

// Load reads the named document into out.  A missing document leaves
// out untouched and returns nil.
func (s *Store) Load(name string, out any) error {
	data, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading state %s: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding state %s: %w", name, err)
	}

	return nil
}

// Save writes the named document atomically: a crash mid-write leaves
// the previous version intact.
func (s *Store) Save(name string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", name, err)
	}

	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	path := s.path(name)
	temp := path + ".tmp"

	if err := afero.WriteFile(s.fs, temp, data, 0o600); err != nil {
		return fmt.Errorf("writing state %s: %w", name, err)
	}

	if err := s.fs.Rename(temp, path); err != nil {
		return fmt.Errorf("committing state %s: %w", name, err)
	}

	return nil
}
