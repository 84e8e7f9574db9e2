// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package pubsub implements the channel registry: a bipartite index
// between channel names and subscribed connections, grounded on
// internal/miniplumber's Pipe/Reader fanout.
package pubsub

import (
	"sync"

	log "github.com/sandia-minimega/keyd/pkg/minilog"
)

// Writer is the minimal capability a subscriber needs: deliver one
// already-framed publish to its connection. Implementations must be safe
// for concurrent use, since Publish fans out to every subscriber writer in
// parallel.
type Writer interface {
	PublishMessage(channel string, payload []byte) error
}

// Registry is the process-wide channel registry. Neither side owns the
// connection — the connection owns itself and unregisters from every
// channel on termination.
type Registry struct {
	mu sync.Mutex

	// channel -> subscriber id -> writer
	channels map[string]map[string]Writer
	// subscriber id -> set of channels
	subscribers map[string]map[string]bool
}

func New() *Registry {
	return &Registry{
		channels:    make(map[string]map[string]Writer),
		subscribers: make(map[string]map[string]bool),
	}
}

// Subscribe adds (channel, id) if not already present, returning the
// subscriber's total channel count after the call.
func (r *Registry) Subscribe(channel, id string, w Writer) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[channel] == nil {
		r.channels[channel] = make(map[string]Writer)
	}
	r.channels[channel][id] = w

	if r.subscribers[id] == nil {
		r.subscribers[id] = make(map[string]bool)
	}
	r.subscribers[id][channel] = true

	return len(r.subscribers[id])
}

// Unsubscribe removes (channel, id), returning the subscriber's remaining
// channel count.
func (r *Registry) Unsubscribe(channel, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs := r.channels[channel]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.channels, channel)
		}
	}
	if chans := r.subscribers[id]; chans != nil {
		delete(chans, channel)
		return len(chans)
	}
	return 0
}

// UnsubscribeAll releases every registration for id, called on connection
// termination.
func (r *Registry) UnsubscribeAll(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.subscribers[id] {
		if subs := r.channels[channel]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.channels, channel)
			}
		}
	}
	delete(r.subscribers, id)
}

// Publish snapshots the current subscriber set for channel, then writes to
// each in parallel. Write failures are logged, not propagated; the
// enumerated count is returned regardless of delivery outcome.
func (r *Registry) Publish(channel string, payload []byte) int {
	r.mu.Lock()
	subs := make(map[string]Writer, len(r.channels[channel]))
	for id, w := range r.channels[channel] {
		subs[id] = w
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, w := range subs {
		wg.Add(1)
		go func(id string, w Writer) {
			defer wg.Done()
			if err := w.PublishMessage(channel, payload); err != nil {
				log.Warn("pubsub: publish to %s on %s: %v", id, channel, err)
			}
		}(id, w)
	}
	wg.Wait()

	return len(subs)
}
