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

package serverenv

import (
	"context"
	"testing"

	"github.com/immuni-app/analytics-server/pkg/secrets"
)

func TestNewOptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sm, err := secrets.NewInMemoryFromMap(ctx, map[string]string{"key": "value"})
	if err != nil {
		t.Fatal(err)
	}

	env := New(ctx, WithSecretManager(sm))
	if env.SecretManager() != sm {
		t.Error("secret manager was not installed")
	}
	if env.Coordination() != nil {
		t.Error("coordination store should not be installed")
	}
	if env.Documents() != nil {
		t.Error("document store should not be installed")
	}
	if env.Broker() != nil {
		t.Error("broker should not be installed")
	}
	if env.ObservabilityExporter() != nil {
		t.Error("observability exporter should not be installed")
	}
}

func TestCloseEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if err := New(ctx).Close(ctx); err != nil {
		t.Errorf("Close on an empty env: %v", err)
	}

	var env *ServerEnv
	if err := env.Close(ctx); err != nil {
		t.Errorf("Close on a nil env: %v", err)
	}
}
