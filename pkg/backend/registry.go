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

package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eschercloudai/site-agent/pkg/components"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
)

// Factory constructs a driver from offering scoped settings.  Factories
// must validate their settings and fail with a configuration error.
type Factory func(settings map[string]string, mapper *components.Mapper) (Driver, error)

//nolint:gochecknoglobals
var (
	registryMutex sync.Mutex
	registry      = map[string]Factory{}
)

// Register binds a backend type name to a driver factory.  Duplicate
// registration is a programming error and panics at startup.
func Register(name string, factory Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, ok := registry[name]; ok {
		panic("duplicate backend registration: " + name)
	}

	registry[name] = factory
}

// New constructs a driver for the named backend type.
func New(name string, settings map[string]string, mapper *components.Mapper) (Driver, error) {
	registryMutex.Lock()
	factory, ok := registry[name]
	registryMutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown backend type %q, have %v", coreerrors.ErrConfiguration, name, Types())
	}

	return factory(settings, mapper)
}

// Types returns the registered backend type names.
func Types() []string {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	var out []string

	for name := range registry {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}
