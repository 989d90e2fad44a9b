package transcription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/parley-ai/parley/backend/internal/service/asr/asrtest"
)

func newTestRegistry(t *testing.T, opts Options) (*Registry, *asrtest.Dialer, *fakeClock) {
	t.Helper()

	dialer := asrtest.NewDialer()
	clock := newFakeClock()
	reg := NewRegistry(dialer, opts)
	reg.now = clock.Now
	return reg, dialer, clock
}

func TestRegistryOpenRegistersAndListens(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})

	id, err := reg.Open(context.Background())
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	session, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if session.ID() != id {
		t.Fatalf("unexpected session id %q", session.ID())
	}

	conn := dialer.Conn(id)
	if conn == nil || !conn.Listening() {
		t.Fatal("expected connection dialed and listening")
	}

	conn.EmitCommitted("first")
	if got := session.Transcripts(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("expected dispatched commit, got %v", got)
	}
}

func TestRegistryOpenFailureRegistersNothing(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})
	dialer.Err = errors.New("bad api key")

	_, err := reg.Open(context.Background())
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryUnknownSession(t *testing.T) {
	reg, _, _ := newTestRegistry(t, Options{})

	if _, err := reg.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if reg.Remove("missing") {
		t.Fatal("expected Remove of unknown session to report false")
	}
}

func TestRegistryRemoveDisconnectsOnce(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})

	id, err := reg.Open(context.Background())
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	if !reg.Remove(id) {
		t.Fatal("expected first Remove to succeed")
	}
	if reg.Remove(id) {
		t.Fatal("expected second Remove to be a no-op")
	}

	if n := dialer.Conn(id).Disconnects(); n != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", n)
	}
}

func TestRegistryDropsEventsAfterRemove(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})

	id, _ := reg.Open(context.Background())
	session, _ := reg.Get(id)
	reg.Remove(id)

	dialer.Conn(id).EmitCommitted("late")
	if got := session.Transcripts(); len(got) != 0 {
		t.Fatalf("expected late event dropped, got %v", got)
	}
}

func TestRegistrySweepEvictsIdleSession(t *testing.T) {
	reg, dialer, clock := newTestRegistry(t, Options{SessionTimeout: time.Minute})

	idle, _ := reg.Open(context.Background())
	active, _ := reg.Open(context.Background())

	clock.Advance(45 * time.Second)
	activeSession, _ := reg.Get(active)
	activeSession.touch(clock.Now())
	clock.Advance(30 * time.Second)

	if removed := reg.Sweep(); removed != 1 {
		t.Fatalf("expected one eviction, got %d", removed)
	}

	if _, err := reg.Get(idle); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session evicted, got %v", err)
	}
	if _, err := reg.Get(active); err != nil {
		t.Fatalf("expected active session kept, got %v", err)
	}

	// a close racing the sweep must not disconnect a second time
	reg.Remove(idle)
	if n := dialer.Conn(idle).Disconnects(); n != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", n)
	}
	if n := dialer.Conn(active).Disconnects(); n != 0 {
		t.Fatalf("expected active connection untouched, got %d disconnects", n)
	}
}

func TestRegistrySweepSparesSessionActiveAfterScan(t *testing.T) {
	reg, dialer, clock := newTestRegistry(t, Options{SessionTimeout: time.Minute})

	id, _ := reg.Open(context.Background())
	clock.Advance(2 * time.Minute)

	scanned := false
	reg.afterScan = func() {
		scanned = true
		// a provider event lands after the session was picked as a candidate
		dialer.Conn(id).EmitPartial("still talking")
	}

	if removed := reg.Sweep(); removed != 0 {
		t.Fatalf("expected no eviction, got %d", removed)
	}
	if !scanned {
		t.Fatal("expected sweep to reach the removal phase")
	}
	if _, err := reg.Get(id); err != nil {
		t.Fatalf("expected session kept, got %v", err)
	}
	if n := dialer.Conn(id).Disconnects(); n != 0 {
		t.Fatalf("expected no disconnect, got %d", n)
	}
}

func TestRegistryProviderEventsKeepSessionAlive(t *testing.T) {
	reg, dialer, clock := newTestRegistry(t, Options{SessionTimeout: time.Minute})

	id, _ := reg.Open(context.Background())
	clock.Advance(50 * time.Second)
	dialer.Conn(id).EmitPartial("still talking")
	clock.Advance(50 * time.Second)

	if removed := reg.Sweep(); removed != 0 {
		t.Fatalf("expected no eviction, got %d", removed)
	}
}

func TestRegistryMaybeSweepThrottles(t *testing.T) {
	reg, _, clock := newTestRegistry(t, Options{
		SessionTimeout:   time.Minute,
		SweepMinInterval: 10 * time.Second,
	})

	reg.Open(context.Background())
	reg.MaybeSweep()

	clock.Advance(2 * time.Minute)
	reg.lastSweep.Store(clock.Now().Add(-5 * time.Second).UnixNano())
	if removed := reg.MaybeSweep(); removed != 0 {
		t.Fatalf("expected throttled sweep, got %d", removed)
	}

	clock.Advance(6 * time.Second)
	if removed := reg.MaybeSweep(); removed != 1 {
		t.Fatalf("expected sweep after interval, got %d", removed)
	}
}

func TestRegistryRunStopsOnCancel(t *testing.T) {
	reg, _, _ := newTestRegistry(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, _ := reg.Open(context.Background())
		ids = append(ids, id)
	}

	reg.CloseAll()
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	for _, id := range ids {
		if n := dialer.Conn(id).Disconnects(); n != 1 {
			t.Fatalf("session %s: expected one disconnect, got %d", id, n)
		}
	}
}

func TestRegistryTranscriptsGrowMonotonically(t *testing.T) {
	reg, dialer, _ := newTestRegistry(t, Options{})

	id, _ := reg.Open(context.Background())
	session, _ := reg.Get(id)
	conn := dialer.Conn(id)

	const total = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			conn.EmitCommitted(fmt.Sprintf("segment %d", i))
		}
	}()

	var previous []string
	for len(previous) < total {
		current := session.Transcripts()
		if len(current) < len(previous) {
			t.Fatalf("transcripts shrank from %d to %d", len(previous), len(current))
		}
		for i := range previous {
			if current[i] != previous[i] {
				t.Fatalf("segment %d changed from %q to %q", i, previous[i], current[i])
			}
		}
		previous = current
	}
	wg.Wait()
}
