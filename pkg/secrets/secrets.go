// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets defines a minimum abstract interface for a secret manager
// and a registry of concrete implementations selected by configuration.
package secrets

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SecretManager defines the minimum shared functionality for a secret manager
// used by this application.
type SecretManager interface {
	GetSecretValue(ctx context.Context, name string) (string, error)
}

// ManagerFunc builds a secret manager from the provided configuration.
type ManagerFunc func(ctx context.Context, cfg *Config) (SecretManager, error)

// Config represents the config for a secret manager.
type Config struct {
	Type           string        `env:"SECRET_MANAGER, default=NOOP"`
	SecretsDir     string        `env:"SECRETS_DIR, default=/var/run/secrets"`
	CacheTTL       time.Duration `env:"SECRET_CACHE_TTL, default=5m"`
	FilesystemRoot string        `env:"SECRET_FILESYSTEM_ROOT"`
}

var (
	managersLock sync.RWMutex
	managers     = make(map[string]ManagerFunc)
)

// RegisterManager registers a new secret manager with the given name. If a
// manager is already registered with the given name, it panics. Managers are
// usually registered via an init function.
func RegisterManager(name string, fn ManagerFunc) {
	managersLock.Lock()
	defer managersLock.Unlock()

	if _, ok := managers[name]; ok {
		panic(fmt.Sprintf("secret manager %q is already registered", name))
	}
	managers[name] = fn
}

// RegisteredManagers returns the list of the names of the registered secret
// managers.
func RegisteredManagers() []string {
	managersLock.RLock()
	defer managersLock.RUnlock()

	list := make([]string, 0, len(managers))
	for k := range managers {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

// SecretManagerFor returns the secret manager with the given name, or an
// error if one does not exist.
func SecretManagerFor(ctx context.Context, cfg *Config) (SecretManager, error) {
	managersLock.RLock()
	defer managersLock.RUnlock()

	name := cfg.Type
	fn, ok := managers[name]
	if !ok {
		return nil, fmt.Errorf("unknown secret manager %q, expected one of %v",
			name, RegisteredManagers())
	}
	return fn(ctx, cfg)
}
