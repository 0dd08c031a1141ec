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

package safetynet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/tasks"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

const (
	// QueueKey is the broker queue attestation verifications are pushed to.
	QueueKey = "authorization_android"

	// TaskName identifies the verification task on the queue.
	TaskName = "verify_safety_net_attestation"
)

// Enqueuer pushes validated operational info towards the document store.
type Enqueuer interface {
	EnqueueOperationalInfo(ctx context.Context, info *model.OperationalInfo) error
}

// Processor handles queued attestation verifications. Genuine uploads get
// their salt burned and their operational info enqueued for storage;
// rejected ones are dropped without a trace the client could observe.
type Processor struct {
	verifier *Verifier
	salts    *SaltRegistry
	enqueuer Enqueuer
}

// NewProcessor builds a Processor from its collaborators.
func NewProcessor(verifier *Verifier, salts *SaltRegistry, enqueuer Enqueuer) *Processor {
	return &Processor{
		verifier: verifier,
		salts:    salts,
		enqueuer: enqueuer,
	}
}

// HandleVerifyAttestation returns the broker handler for TaskName. The
// payload is the upload request exactly as the client sent it, so the nonce
// can be recomputed over the original field encoding.
func (p *Processor) HandleVerifyAttestation() tasks.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		logger := logging.FromContext(ctx).Named("safetynet.Processor")

		var req v1.GoogleOperationalInfoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("safetynet: failed to decode payload: %w", err)
		}
		info, err := model.NewOperationalInfo(model.PlatformAndroid, &req.OperationalInfo)
		if err != nil {
			return fmt.Errorf("safetynet: invalid operational info: %w", err)
		}

		if err := p.verifier.Verify(ctx, req.SignedAttestation, req.Salt, info, req.LastRiskyExposureOn); err != nil {
			if IsVerificationFailure(err) {
				return nil
			}
			return err
		}

		burned, err := p.salts.Burn(ctx, req.Salt)
		if err != nil {
			return fmt.Errorf("safetynet: failed to burn salt: %w", err)
		}
		if !burned {
			logger.Warnw("Found previously used salt.", "salt", req.Salt)
			RecordReusedSalt(ctx, true)
			return nil
		}

		return p.enqueuer.EnqueueOperationalInfo(ctx, info)
	}
}
