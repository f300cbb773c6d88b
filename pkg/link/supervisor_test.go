package link

import (
	"context"
	"errors"
	"testing"
	"time"
)

func blockUntil(t *testing.T, clock interface {
	BlockUntilContext(context.Context, int) error
}, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d clock waiters: %v", n, err)
	}
}

func TestReconnectAfterRefusals(t *testing.T) {
	d := NewMockDialer()
	d.FailFunc = func(attempt int) error {
		if attempt <= 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	s, clock, rec := newTestSession(t, d)
	sv := NewSupervisor(s, 3*time.Second)

	s.Connect()
	for i := 1; i <= 3; i++ {
		waitFor(t, "closed", func() bool { return rec.count(StateClosed) == i })
		blockUntil(t, clock, 1)

		clock.Advance(3*time.Second - time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		if n := rec.count(StateConnecting); n != i {
			t.Fatalf("reconnect %d fired early: %d connecting", i, n)
		}

		clock.Advance(time.Millisecond)
		waitFor(t, "connecting", func() bool { return rec.count(StateConnecting) == i+1 })
	}
	waitState(t, s, StateOpen)

	want := []State{
		StateConnecting, StateClosed,
		StateConnecting, StateClosed,
		StateConnecting, StateClosed,
		StateConnecting, StateOpen,
	}
	if got := rec.states(); !equalStates(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}

	ts := rec.all()
	for i := 1; i < len(ts); i++ {
		if ts[i-1].To == StateClosed && ts[i].To == StateConnecting {
			if gap := ts[i].At.Sub(ts[i-1].At); gap != 3*time.Second {
				t.Errorf("gap before transition %d = %v, want 3s", i, gap)
			}
		}
	}
	if sv.Attempts() != 3 {
		t.Errorf("attempts = %d, want 3", sv.Attempts())
	}
	if d.Dials() != 4 {
		t.Errorf("dials = %d, want 4", d.Dials())
	}
	if s.Endpoint().URL() != "ws://host:100/ws" {
		t.Errorf("url = %s", s.Endpoint().URL())
	}
}

func TestSingleReconnectPending(t *testing.T) {
	d := NewMockDialer()
	d.FailFunc = func(int) error { return errors.New("refused") }
	s, clock, rec := newTestSession(t, d)
	sv := NewSupervisor(s, 3*time.Second)

	s.Connect()
	waitFor(t, "first close", func() bool { return rec.count(StateClosed) == 1 })
	blockUntil(t, clock, 1)

	// A second close while the timer is pending must not add another.
	s.Connect()
	waitFor(t, "second close", func() bool { return rec.count(StateClosed) == 2 })
	if !sv.Pending() {
		t.Fatal("expected a pending reconnect")
	}

	clock.Advance(3 * time.Second)
	waitFor(t, "reconnect dial", func() bool { return d.Dials() == 3 })
	time.Sleep(20 * time.Millisecond)

	if d.Dials() != 3 {
		t.Errorf("dials = %d, want 3", d.Dials())
	}
	if sv.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", sv.Attempts())
	}
}

func TestReconnectAfterPeerClose(t *testing.T) {
	d := NewMockDialer()
	s, clock, _ := newTestSession(t, d)
	NewSupervisor(s, 0)

	s.Connect()
	waitState(t, s, StateOpen)
	d.Last().PeerClose()
	waitState(t, s, StateClosed)

	blockUntil(t, clock, 1)
	clock.Advance(DefaultReconnectDelay)
	waitFor(t, "second channel", func() bool { return len(d.Channels()) == 2 })
	waitState(t, s, StateOpen)
}

func TestDisableCancelsPending(t *testing.T) {
	d := NewMockDialer()
	d.FailFunc = func(int) error { return errors.New("refused") }
	s, clock, rec := newTestSession(t, d)
	sv := NewSupervisor(s, 3*time.Second)

	s.Connect()
	waitFor(t, "close", func() bool { return rec.count(StateClosed) == 1 })
	blockUntil(t, clock, 1)

	sv.Disable()
	if sv.Pending() {
		t.Error("Disable should clear the pending timer")
	}

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := rec.count(StateConnecting); n != 1 {
		t.Errorf("connecting transitions = %d, want 1", n)
	}
}

func TestTeardownSchedulesNothing(t *testing.T) {
	d := NewMockDialer()
	s, _, _ := newTestSession(t, d)
	sv := NewSupervisor(s, time.Second)

	s.Connect()
	waitState(t, s, StateOpen)
	s.Teardown()
	<-s.Done()

	if sv.Pending() {
		t.Error("terminal close must not schedule a reconnect")
	}
}
