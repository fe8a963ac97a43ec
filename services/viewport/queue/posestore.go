// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"sync"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// poseStore is a capacity-one, overwrite-on-write mailbox holding the
// latest accepted camera pose and its generation.
//
// Only the newest pose ever matters, so there is no queue of pending
// work: an update overwrites the previous pose and bumps the generation
// counter by exactly one. The counter never skips and never repeats; it
// total-orders all accepted updates. Generations start at 1, leaving 0
// as the "nothing yet" value.
//
// The worker sleeps in await until a generation newer than the one it
// last worked on arrives. Producers never block: update is a lock, two
// assignments, and a broadcast.
type poseStore struct {
	mu         sync.Mutex
	cond       *sync.Cond
	generation uint64
	pose       datatypes.CameraPose
	closed     bool
}

func newPoseStore() *poseStore {
	s := &poseStore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// update installs a new pose and returns its generation. The caller
// must have validated the pose already; the store accepts anything.
//
// A pose identical to the stored one is absorbed: the current
// generation comes back with changed=false, no waiter wakes, and no
// re-render happens. Resubmitting the same camera position is common
// (a viewer reasserting its state) and renders the same image.
func (s *poseStore) update(pose datatypes.CameraPose) (uint64, bool) {
	s.mu.Lock()
	if s.generation > 0 && pose == s.pose {
		gen := s.generation
		s.mu.Unlock()
		return gen, false
	}
	s.generation++
	gen := s.generation
	s.pose = pose
	s.cond.Broadcast()
	s.mu.Unlock()
	return gen, true
}

// current returns the newest generation. Used by the worker for its
// pass-boundary supersession check.
func (s *poseStore) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// snapshot returns the newest (generation, pose) pair.
func (s *poseStore) snapshot() (uint64, datatypes.CameraPose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation, s.pose
}

// await blocks until a generation newer than after exists, then returns
// it with its pose. Returns ok=false once the store is closed.
func (s *poseStore) await(after uint64) (uint64, datatypes.CameraPose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.generation <= after && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, datatypes.CameraPose{}, false
	}
	return s.generation, s.pose, true
}

// close wakes any waiter and makes all future awaits return ok=false.
func (s *poseStore) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
