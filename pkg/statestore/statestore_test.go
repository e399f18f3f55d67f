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

package statestore_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/site-agent/pkg/statestore"
)

// TestRoundTrip expects a saved document to load back unchanged.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	store := statestore.NewWithFs(afero.NewMemMapFs(), "/var/lib/site-agent")

	in := map[string]map[string]float64{
		"alloc_fusion-sims": {"cpu": 6000},
	}

	require.NoError(t, store.Save("offering-1-2024-05", in))

	out := map[string]map[string]float64{}
	require.NoError(t, store.Load("offering-1-2024-05", &out))

	assert.Equal(t, in, out)
}

// TestLoadMissing expects a missing document to be a quiet no-op.
func TestLoadMissing(t *testing.T) {
	t.Parallel()

	store := statestore.NewWithFs(afero.NewMemMapFs(), "/var/lib/site-agent")

	out := map[string]float64{"seed": 1}
	require.NoError(t, store.Load("never-written", &out))

	assert.Equal(t, map[string]float64{"seed": 1}, out)
}

// TestNameSanitized expects path separators in names to stay inside the
// store directory.
func TestNameSanitized(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	store := statestore.NewWithFs(fs, "/state")

	require.NoError(t, store.Save("../escape/2024-05", map[string]int{"x": 1}))

	exists, err := afero.Exists(fs, "/state/..-escape-2024-05.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestSaveOverwrites expects the latest save to win.
func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	store := statestore.NewWithFs(afero.NewMemMapFs(), "/state")

	require.NoError(t, store.Save("doc", map[string]int{"v": 1}))
	require.NoError(t, store.Save("doc", map[string]int{"v": 2}))

	out := map[string]int{}
	require.NoError(t, store.Load("doc", &out))
	assert.Equal(t, 2, out["v"])
}
