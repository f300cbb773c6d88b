package link

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

const waitTimeout = 2 * time.Second

var testEndpoint = Endpoint{
	Name:      "robot",
	Host:      "host",
	Port:      100,
	Path:      "/ws",
	Transport: TransportWS,
}

// recorder collects transitions.
type recorder struct {
	mu sync.Mutex
	ts []Transition
}

func (r *recorder) observe(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ts = append(r.ts, t)
}

func (r *recorder) all() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.ts...)
}

func (r *recorder) states() []State {
	var out []State
	for _, t := range r.all() {
		out = append(out, t.To)
	}
	return out
}

func (r *recorder) count(to State) int {
	n := 0
	for _, t := range r.all() {
		if t.To == to {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, d *MockDialer, opts ...Option) (*Session, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	base := []Option{
		WithDialer(d),
		WithClock(clock),
		WithLogger(log.Discard()),
		WithObserver(rec.observe),
	}
	s, err := NewSession(testEndpoint, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(s.Teardown)
	return s, clock, rec
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewSessionValidates(t *testing.T) {
	if _, err := NewSession(Endpoint{Name: "robot", Host: "h", Port: 0, Transport: TransportWS}); err == nil {
		t.Error("expected error for port 0")
	}
	if _, err := NewSession(testEndpoint, WithInboxSize(0)); err == nil {
		t.Error("expected error for zero inbox")
	}
}

func TestConnectOpens(t *testing.T) {
	d := NewMockDialer()
	s, _, rec := newTestSession(t, d)

	if s.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", s.State())
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, s, StateOpen)

	want := []State{StateConnecting, StateOpen}
	if got := rec.states(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	ts := rec.all()
	if ts[0].ConnID == "" || ts[0].ConnID != ts[1].ConnID {
		t.Errorf("conn ids = %q, %q", ts[0].ConnID, ts[1].ConnID)
	}
	if ts[0].From != StateIdle {
		t.Errorf("first From = %v, want idle", ts[0].From)
	}

	// Connect while open is a no-op.
	if err := s.Connect(); err != nil {
		t.Errorf("second Connect failed: %v", err)
	}
	if d.Dials() != 1 {
		t.Errorf("dials = %d, want 1", d.Dials())
	}
}

func TestSendWritesEncodedFrame(t *testing.T) {
	d := NewMockDialer()
	s, _, _ := newTestSession(t, d)
	s.Connect()
	waitState(t, s, StateOpen)

	if err := s.Send(protocol.Move(protocol.DirRightForward, 180)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ch := d.Last()
	if !ch.WaitForWrites(1, waitTimeout) {
		t.Fatal("no write")
	}
	if got := ch.Writes()[0]; got != `{"N":102,"D1":7,"D2":180}` {
		t.Errorf("frame = %s", got)
	}
	if s.Stats().Sent != 1 {
		t.Errorf("sent = %d, want 1", s.Stats().Sent)
	}
}

func TestSendRejectedWhenNotOpen(t *testing.T) {
	d := NewMockDialer()
	d.Hold = make(chan struct{})
	s, _, _ := newTestSession(t, d)

	err := s.Send(protocol.Move(protocol.DirForward, 100))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("idle Send error = %v, want ErrNotConnected", err)
	}

	s.Connect()
	waitState(t, s, StateConnecting)
	err = s.Send(protocol.Move(protocol.DirForward, 100))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("connecting Send error = %v, want ErrNotConnected", err)
	}

	close(d.Hold)
	waitState(t, s, StateOpen)
	time.Sleep(20 * time.Millisecond)
	if n := d.Last().WriteCount(); n != 0 {
		t.Errorf("writes = %d, rejected sends must not be queued", n)
	}
	if s.Stats().Rejected != 2 {
		t.Errorf("rejected = %d, want 2", s.Stats().Rejected)
	}
}

func TestDialFailureCloses(t *testing.T) {
	d := NewMockDialer()
	d.FailFunc = func(int) error { return errors.New("connection refused") }
	s, _, rec := newTestSession(t, d)

	s.Connect()
	waitState(t, s, StateClosed)

	if !errors.Is(s.LastError(), ErrConnectFailure) {
		t.Errorf("LastError = %v, want ErrConnectFailure", s.LastError())
	}
	ts := rec.all()
	if last := ts[len(ts)-1]; last.From != StateConnecting || last.Err == nil {
		t.Errorf("last transition = %+v", last)
	}
}

func TestReadErrorsClassified(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*MockChannel)
		want   error
	}{
		{"peer close", func(c *MockChannel) { c.PeerClose() }, ErrPeerClosed},
		{"reset", func(c *MockChannel) { c.Fail(errors.New("connection reset")) }, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewMockDialer()
			s, _, _ := newTestSession(t, d)
			s.Connect()
			waitState(t, s, StateOpen)

			ch := d.Last()
			tt.inject(ch)
			waitState(t, s, StateClosed)

			if !errors.Is(s.LastError(), tt.want) {
				t.Errorf("LastError = %v, want %v", s.LastError(), tt.want)
			}
			if n := ch.CloseCount(); n != 1 {
				t.Errorf("close count = %d, want 1", n)
			}
		})
	}
}

func TestWriteErrorCloses(t *testing.T) {
	d := NewMockDialer()
	s, _, _ := newTestSession(t, d)
	s.Connect()
	waitState(t, s, StateOpen)

	ch := d.Last()
	ch.WriteErr = errors.New("broken pipe")
	s.Send(protocol.Stop())
	waitState(t, s, StateClosed)

	if !errors.Is(s.LastError(), ErrTransport) {
		t.Errorf("LastError = %v, want ErrTransport", s.LastError())
	}
	var le *Error
	if !errors.As(s.LastError(), &le) || le.Op != "write" {
		t.Errorf("LastError = %#v, want write *Error", s.LastError())
	}
	if n := ch.CloseCount(); n != 1 {
		t.Errorf("close count = %d, want 1", n)
	}
}

func TestForceCloseOpen(t *testing.T) {
	d := NewMockDialer()
	s, _, rec := newTestSession(t, d)
	s.Connect()
	waitState(t, s, StateOpen)

	s.ForceClose()
	waitState(t, s, StateClosed)

	want := []State{StateConnecting, StateOpen, StateClosing, StateClosed}
	if got := rec.states(); !equalStates(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	if s.LastError() != nil {
		t.Errorf("LastError = %v, want nil for local close", s.LastError())
	}
	if n := d.Last().CloseCount(); n != 1 {
		t.Errorf("close count = %d, want 1", n)
	}
}

func TestForceCloseWhileConnecting(t *testing.T) {
	d := NewMockDialer()
	d.Hold = make(chan struct{})
	s, _, _ := newTestSession(t, d)

	s.Connect()
	waitState(t, s, StateConnecting)
	s.ForceClose()
	waitState(t, s, StateClosed)

	if len(d.Channels()) != 0 {
		t.Error("abandoned dial must not produce a channel")
	}
}

func TestTeardown(t *testing.T) {
	d := NewMockDialer()
	s, _, rec := newTestSession(t, d)
	s.Connect()
	waitState(t, s, StateOpen)

	s.Teardown()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("teardown did not finish")
	}

	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
	if err := s.Connect(); !errors.Is(err, ErrTornDown) {
		t.Errorf("Connect after teardown = %v, want ErrTornDown", err)
	}
	if n := d.Last().CloseCount(); n != 1 {
		t.Errorf("close count = %d, want 1", n)
	}

	ts := rec.all()
	last := ts[len(ts)-1]
	if last.To != StateIdle || !last.Terminal {
		t.Errorf("last transition = %+v, want terminal idle", last)
	}

	// Idempotent.
	s.Teardown()
}

func TestTeardownIdle(t *testing.T) {
	s, _, _ := newTestSession(t, NewMockDialer())
	s.Teardown()
	select {
	case <-s.Done():
	default:
		t.Fatal("idle teardown should finish immediately")
	}
}

func TestStaleChannelIgnored(t *testing.T) {
	d := NewMockDialer()
	s, _, _ := newTestSession(t, d)
	s.Connect()
	waitState(t, s, StateOpen)

	s.mu.Lock()
	old := s.cur
	s.mu.Unlock()

	d.Last().PeerClose()
	waitState(t, s, StateClosed)
	s.Connect()
	waitState(t, s, StateOpen)

	s.channelFailed(old, "read", errors.New("late error"))
	if s.State() != StateOpen {
		t.Errorf("stale failure moved state to %v", s.State())
	}
	if len(d.Channels()) != 2 {
		t.Errorf("channels = %d, want 2", len(d.Channels()))
	}
}

func TestInboxBounded(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	d := NewMockDialer()
	s, _, _ := newTestSession(t, d,
		WithInboxSize(3),
		WithMessageHandler(func(m Inbound) {
			mu.Lock()
			seen = append(seen, m.Text)
			mu.Unlock()
		}),
	)
	s.Connect()
	waitState(t, s, StateOpen)

	ch := d.Last()
	for _, m := range []string{"{1}", "{2}", "{3}", "{4}", "{5}"} {
		ch.Deliver(m)
	}
	waitFor(t, "5 messages", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	})

	in := s.Inbox()
	if len(in) != 3 {
		t.Fatalf("inbox len = %d, want 3", len(in))
	}
	if in[0].Text != "{3}" || in[2].Text != "{5}" {
		t.Errorf("inbox = %v", in)
	}
	if in[0].Peer != "robot" || in[0].ConnID == "" {
		t.Errorf("inbound metadata = %+v", in[0])
	}
}

func TestOutboxCoalescesMotion(t *testing.T) {
	enc := protocol.Encoder{}
	toFrame := func(c protocol.Command) frame { return frame{data: enc.Encode(c), motion: c.IsMotion()} }

	o := newOutbox()
	steps := []struct {
		cmd      protocol.Command
		replaced bool
	}{
		{protocol.Move(protocol.DirForward, 50), false},
		{protocol.SetMode(protocol.ModeFollow), false},
		{protocol.Move(protocol.DirLeft, 90), true},
		{protocol.Heartbeat(), false},
		{protocol.Stop(), true},
	}
	for _, st := range steps {
		if got := o.push(toFrame(st.cmd)); got != st.replaced {
			t.Errorf("push(%v) replaced = %v, want %v", st.cmd, got, st.replaced)
		}
	}

	want := []string{
		`{"N":101,"D1":3}`,
		`{"alive":true}`,
		`{"N":102,"D1":9,"D2":0}`,
	}
	if o.len() != len(want) {
		t.Fatalf("outbox len = %d, want %d", o.len(), len(want))
	}
	for _, w := range want {
		f, ok := o.pop()
		if !ok || string(f.data) != w {
			t.Errorf("pop = %s, want %s", f.data, w)
		}
	}
	if _, ok := o.pop(); ok {
		t.Error("outbox should be empty")
	}
}

func TestInboxRing(t *testing.T) {
	b := newInbox(2)
	if len(b.snapshot()) != 0 {
		t.Fatal("new inbox should be empty")
	}
	b.add(Inbound{Text: "a"})
	b.add(Inbound{Text: "b"})
	b.add(Inbound{Text: "c"})
	got := b.snapshot()
	if len(got) != 2 || got[0].Text != "b" || got[1].Text != "c" {
		t.Errorf("snapshot = %v", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("refused")
	err := &Error{Op: "dial", Peer: "robot", Kind: ErrConnectFailure, Err: cause}

	if !errors.Is(err, ErrConnectFailure) || !errors.Is(err, cause) {
		t.Error("errors.Is should match kind and cause")
	}
	if got := err.Error(); got != "link: connect failure [robot dial]: refused" {
		t.Errorf("Error() = %q", got)
	}
	if got := classify("robot", "read", err); got != err {
		t.Error("classify should keep link errors as-is")
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		ep  Endpoint
		url string
		ok  bool
	}{
		{testEndpoint, "ws://host:100/ws", true},
		{Endpoint{Name: "accessory", Host: "192.168.4.2", Port: 81, Transport: TransportTCP}, "tcp://192.168.4.2:81", true},
		{Endpoint{Name: "x", Host: "h", Port: 1, Transport: "udp"}, "", false},
		{Endpoint{Host: "h", Port: 1, Transport: TransportTCP}, "", false},
	}
	for _, tt := range tests {
		err := tt.ep.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%+v) = %v", tt.ep, err)
		}
		if tt.ok && tt.ep.URL() != tt.url {
			t.Errorf("URL = %s, want %s", tt.ep.URL(), tt.url)
		}
	}
}
