// Package reconciler implements the Reconciler: a periodic loop that keeps
// the set of live Device Supervisors equal to the device set persisted in
// the configuration store.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"skipfleet/internal/models"
)

// DefaultInterval is the reconciliation tick period.
const DefaultInterval = 5 * time.Second

// DeviceLister is the configuration store surface the Reconciler reads.
type DeviceLister interface {
	ListDevices() ([]models.DeviceSnapshot, error)
}

// Supervisor is the lifecycle surface of a Device Supervisor.
type Supervisor interface {
	Start(ctx context.Context)
	Stop()
	Snapshot() models.DeviceSnapshot
}

// Factory builds (but does not start) a Supervisor for one device snapshot.
type Factory func(snapshot models.DeviceSnapshot) (Supervisor, error)

// Reconciler owns the live map of screen_id -> Supervisor exclusively; no
// other component may read or write it.
type Reconciler struct {
	store    DeviceLister
	factory  Factory
	interval time.Duration

	mu   sync.Mutex
	live map[string]Supervisor

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval overrides the default tick period.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// New constructs a Reconciler. It performs no I/O until Start.
func New(store DeviceLister, factory Factory, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		factory:  factory,
		interval: DefaultInterval,
		live:     map[string]Supervisor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs an immediate tick, then ticks every interval until ctx is
// cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop cancels the loop and waits for every live supervisor to stop.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// LiveCount reports the number of currently live supervisors.
func (r *Reconciler) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.stopAll()
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one reconciliation pass: start, stop, and restart actions within
// the pass run concurrently via an errgroup; the live map is only mutated
// once every action has completed. A failure starting or stopping one
// device is logged and does not abort the pass for the others.
func (r *Reconciler) tick(ctx context.Context) {
	desired, err := r.store.ListDevices()
	if err != nil {
		log.Printf("reconciler: list devices: %v", err)
		return
	}
	desiredByID := make(map[string]models.DeviceSnapshot, len(desired))
	for _, d := range desired {
		desiredByID[d.ScreenID] = d
	}

	r.mu.Lock()
	live := make(map[string]Supervisor, len(r.live))
	for id, sv := range r.live {
		live[id] = sv
	}
	r.mu.Unlock()

	var mu sync.Mutex
	toAdd := map[string]Supervisor{}
	toRemove := map[string]struct{}{}

	var g errgroup.Group

	for id, snap := range desiredByID {
		if _, ok := live[id]; ok {
			continue
		}
		id, snap := id, snap
		g.Go(func() error {
			sv, err := r.start(ctx, snap)
			if err != nil {
				log.Printf("reconciler: start supervisor %s: %v", id, err)
				return nil
			}
			mu.Lock()
			toAdd[id] = sv
			mu.Unlock()
			return nil
		})
	}

	for id, sv := range live {
		if _, ok := desiredByID[id]; ok {
			continue
		}
		id, sv := id, sv
		g.Go(func() error {
			sv.Stop()
			mu.Lock()
			toRemove[id] = struct{}{}
			mu.Unlock()
			return nil
		})
	}

	for id, sv := range live {
		snap, ok := desiredByID[id]
		if !ok || sv.Snapshot().IdentityEqual(snap) {
			continue
		}
		id, sv, snap := id, sv, snap
		g.Go(func() error {
			sv.Stop()
			newSv, err := r.start(ctx, snap)
			if err != nil {
				log.Printf("reconciler: restart supervisor %s: %v", id, err)
				mu.Lock()
				toRemove[id] = struct{}{}
				mu.Unlock()
				return nil
			}
			mu.Lock()
			toAdd[id] = newSv
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // no stage returns a non-nil error; failures are logged and swallowed above

	r.mu.Lock()
	for id := range toRemove {
		delete(r.live, id)
	}
	for id, sv := range toAdd {
		r.live[id] = sv
	}
	r.mu.Unlock()
}

func (r *Reconciler) start(ctx context.Context, snap models.DeviceSnapshot) (Supervisor, error) {
	sv, err := r.factory(snap)
	if err != nil {
		return nil, fmt.Errorf("building supervisor for %s: %w", snap.ScreenID, err)
	}
	sv.Start(ctx)
	return sv, nil
}

func (r *Reconciler) stopAll() {
	r.mu.Lock()
	live := r.live
	r.live = map[string]Supervisor{}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sv := range live {
		sv := sv
		wg.Add(1)
		go func() { defer wg.Done(); sv.Stop() }()
	}
	wg.Wait()
}
