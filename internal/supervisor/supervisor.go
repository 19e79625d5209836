// Package supervisor implements the Device Supervisor: one per device,
// pairing a Lounge Session with a Playback Controller and a daily
// auth-refresh timer, with a clean shutdown that joins both.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"skipfleet/internal/controller"
	"skipfleet/internal/lounge"
	"skipfleet/internal/models"
)

const (
	linkRetryInterval      = 10 * time.Second
	availabilityPollPeriod = 10 * time.Second
	loopRestartDelay       = 5 * time.Second
	authRefreshPeriod      = 24 * time.Hour
)

// Subscription is the handle a Session's Subscribe returns; satisfied by
// *lounge.Subscription.
type Subscription interface {
	Done() <-chan struct{}
	Cancel()
}

// Session is the subset of a Lounge Session the supervisor drives.
type Session interface {
	Linked() bool
	Connected() bool
	IsAvailable() bool
	RefreshAuth(ctx context.Context) error
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, handler lounge.StateHandler) (Subscription, error)
	Disconnect()
}

// Controller is the subset of a Playback Controller the supervisor drives.
type Controller interface {
	lounge.StateHandler
	Start(ctx context.Context) <-chan struct{}
}

// SessionAdapter wraps a *lounge.Session to satisfy Session; Subscribe
// returns *lounge.Subscription through the narrower Subscription interface
// since Go doesn't treat that as automatic.
type SessionAdapter struct {
	*lounge.Session
}

func (a SessionAdapter) Subscribe(ctx context.Context, handler lounge.StateHandler) (Subscription, error) {
	return a.Session.Subscribe(ctx, handler)
}

// Supervisor owns one device's Lounge Session and Playback Controller for
// their shared lifetime.
type Supervisor struct {
	snapshot   models.DeviceSnapshot
	session    Session
	controller Controller

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Supervisor for one device. It does not start any
// background work; call Start for that.
func New(snapshot models.DeviceSnapshot, session Session, ctrl Controller) *Supervisor {
	return &Supervisor{
		snapshot:   snapshot,
		session:    session,
		controller: ctrl,
	}
}

// Snapshot returns the device snapshot this supervisor was started with.
func (sv *Supervisor) Snapshot() models.DeviceSnapshot {
	return sv.snapshot
}

// Start launches the supervisor's main loop, the controller's own
// processing/heartbeat loops, and the daily auth-refresh timer.
func (sv *Supervisor) Start(ctx context.Context) {
	ctx, sv.cancel = context.WithCancel(ctx)
	sv.done = make(chan struct{})

	ctrlDone := sv.controller.Start(ctx)

	go func() {
		defer close(sv.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); sv.loop(ctx) }()
		go func() { defer wg.Done(); sv.authRefreshLoop(ctx) }()
		wg.Wait()
		<-ctrlDone
	}()
}

// Stop cancels the supervisor and its controller, disconnects the session,
// and waits for every owned task to finish.
func (sv *Supervisor) Stop() {
	if sv.cancel == nil {
		return
	}
	sv.cancel()
	sv.session.Disconnect()
	<-sv.done
}

// loop implements the supervisor's main loop: ensure linked, ensure available, connect,
// subscribe, await the subscription's completion. Any failure restarts from
// the top after loopRestartDelay.
func (sv *Supervisor) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := sv.runOnce(ctx); err != nil {
			log.Printf("supervisor %s: %v, restarting in %s", sv.snapshot.ScreenID, err, loopRestartDelay)
			if !sleepOrDone(ctx, loopRestartDelay) {
				return
			}
		}
	}
}

func (sv *Supervisor) runOnce(ctx context.Context) error {
	if err := sv.ensureLinked(ctx); err != nil {
		return err
	}
	if err := sv.ensureAvailable(ctx); err != nil {
		return err
	}
	if err := sv.session.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	sub, err := sv.session.Subscribe(ctx, sv.controller)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	select {
	case <-ctx.Done():
		sub.Cancel()
		return nil
	case <-sub.Done():
		return fmt.Errorf("subscription for %s ended", sv.snapshot.ScreenID)
	}
}

func (sv *Supervisor) ensureLinked(ctx context.Context) error {
	for !sv.session.Linked() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sv.session.RefreshAuth(ctx); err != nil {
			log.Printf("supervisor %s: refresh auth: %v", sv.snapshot.ScreenID, err)
			if !sleepOrDone(ctx, linkRetryInterval) {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (sv *Supervisor) ensureAvailable(ctx context.Context) error {
	for !sv.session.IsAvailable() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sleepOrDone(ctx, availabilityPollPeriod) {
			return ctx.Err()
		}
	}
	return nil
}

func (sv *Supervisor) authRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(authRefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sv.session.RefreshAuth(ctx); err != nil {
				log.Printf("supervisor %s: daily auth refresh: %v", sv.snapshot.ScreenID, err)
			}
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, reporting whether it slept
// the full duration.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
