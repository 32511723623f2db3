/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bridge

import (
	"context"
	"sync"

	"github.com/carverauto/hoibridge/pkg/models"
	"github.com/google/uuid"
)

// Registry is the shared store of live sessions. Every sub-map is keyed by
// session id and all of them are written together under one lock, so a
// reader never sees a session that is only partially present.
type Registry struct {
	mu          sync.RWMutex
	outboxes    map[string]*Outbox
	credentials map[string]models.Credentials
	queues      map[string][]models.ActionRequest
	inFlight    map[string]bool
	cancels     map[string]context.CancelFunc
	newID       func() string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		outboxes:    make(map[string]*Outbox),
		credentials: make(map[string]models.Credentials),
		queues:      make(map[string][]models.ActionRequest),
		inFlight:    make(map[string]bool),
		cancels:     make(map[string]context.CancelFunc),
		newID:       uuid.NewString,
	}
}

// Register mints a new session id and installs the full session state in one
// step. The returned context is cancelled when the session is removed or
// when ctx ends.
func (r *Registry) Register(ctx context.Context, creds models.Credentials, outbox *Outbox) (string, context.Context) {
	sessionCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.exists(id) {
		id = r.newID()
	}

	r.outboxes[id] = outbox
	r.credentials[id] = creds
	r.queues[id] = nil
	r.inFlight[id] = false
	r.cancels[id] = cancel

	return id, sessionCtx
}

func (r *Registry) exists(id string) bool {
	_, ok := r.outboxes[id]

	return ok
}

// Lookup returns the outbound handle of a session.
func (r *Registry) Lookup(id string) (*Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outbox, ok := r.outboxes[id]

	return outbox, ok
}

// Credentials returns the credentials a session authenticated with.
func (r *Registry) Credentials(id string) (models.Credentials, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds, ok := r.credentials[id]

	return creds, ok
}

// EnqueueAction appends req to the session's queue. It reports false and
// drops the request when the session is not registered.
func (r *Registry) EnqueueAction(id string, req models.ActionRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.exists(id) {
		return false
	}

	r.queues[id] = append(r.queues[id], req)

	return true
}

// TryBeginAction marks an action in flight. Only one caller wins while the
// flag is set.
func (r *Registry) TryBeginAction(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.beginLocked(id)
}

func (r *Registry) beginLocked(id string) bool {
	if !r.exists(id) || r.inFlight[id] {
		return false
	}

	r.inFlight[id] = true

	return true
}

// NextAction dequeues the head of the session's queue and marks it in flight.
// It returns false when the queue is empty, an action is already in flight or
// the session is gone.
func (r *Registry) NextAction(id string) (models.ActionRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queues[id]) == 0 || !r.beginLocked(id) {
		return models.ActionRequest{}, false
	}

	queue := r.queues[id]
	next := queue[0]
	queue[0] = models.ActionRequest{}
	r.queues[id] = queue[1:]

	return next, true
}

// CompleteAction clears the in-flight flag.
func (r *Registry) CompleteAction(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(id) {
		r.inFlight[id] = false
	}
}

// Remove deletes every trace of the session, cancels its context and closes
// its outbox. It returns the actions that were still queued.
func (r *Registry) Remove(id string) ([]models.ActionRequest, bool) {
	r.mu.Lock()

	outbox, ok := r.outboxes[id]
	if !ok {
		r.mu.Unlock()

		return nil, false
	}

	dropped := r.queues[id]
	cancel := r.cancels[id]

	delete(r.outboxes, id)
	delete(r.credentials, id)
	delete(r.queues, id)
	delete(r.inFlight, id)
	delete(r.cancels, id)

	r.mu.Unlock()

	cancel()
	outbox.Close()

	return dropped, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.outboxes)
}

// IDs returns the ids of all live sessions in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.outboxes))
	for id := range r.outboxes {
		ids = append(ids, id)
	}

	return ids
}
