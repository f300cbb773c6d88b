package link

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-petpal/internal/log"
	"github.com/teslashibe/go-petpal/pkg/protocol"
)

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"braces", "{a}{b}", []string{"{a}", "{b}"}},
		{"newline", "ok\r\nready\n", []string{"ok", "ready"}},
		{"mixed", "{ok}\r\n{Heartbeat}\n  hello", []string{"{ok}", "{Heartbeat}", "hello"}},
		{"blank", "\n\n  \n", nil},
		{"nested", "{\"status\":{\"battery\":80}}\n{ok}", []string{`{"status":{"battery":80}}`, "{ok}"}},
		{"nested back to back", `{"a":{"b":{}}}{"c":1}`, []string{`{"a":{"b":{}}}`, `{"c":1}`}},
		{"brace in string", `{"msg":"a}b{"}{x}`, []string{`{"msg":"a}b{"}`, "{x}"}},
		{"escaped quote", `{"msg":"say \"}\""}`, []string{`{"msg":"say \"}\""}`}},
		{"unbalanced line", "{\"a\":{\n{ok}", []string{`{"a":{`, "{ok}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := bufio.NewScanner(strings.NewReader(tt.in))
			sc.Split(splitFrames)
			var got []string
			for sc.Scan() {
				got = append(got, sc.Text())
			}
			if err := sc.Err(); err != nil {
				t.Fatalf("scan error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("frames = %q, want %q", got, tt.want)
			}
		})
	}
}

func endpointFor(t *testing.T, name, addr string, kind TransportKind) Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return Endpoint{Name: name, Host: host, Port: port, Path: "/ws", Transport: kind}
}

func TestWebSocketSession(t *testing.T) {
	received := make(chan string, 4)
	closeNow := make(chan struct{})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		conn.WriteMessage(websocket.TextMessage, []byte("{ok}"))

		<-closeNow
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ep := endpointFor(t, "robot", strings.TrimPrefix(srv.URL, "http://"), TransportWS)
	s, err := NewSession(ep, WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Teardown()

	s.Connect()
	waitState(t, s, StateOpen)

	if err := s.Send(protocol.Move(protocol.DirRightForward, 180)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-received:
		if got != `{"N":102,"D1":7,"D2":180}` {
			t.Errorf("server got %s", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("server received nothing")
	}

	waitFor(t, "inbound", func() bool { return len(s.Inbox()) == 1 })
	if s.Inbox()[0].Text != "{ok}" {
		t.Errorf("inbox = %v", s.Inbox())
	}

	close(closeNow)
	waitState(t, s, StateClosed)
	if !errors.Is(s.LastError(), ErrPeerClosed) {
		t.Errorf("LastError = %v, want ErrPeerClosed", s.LastError())
	}
}

func TestWebSocketRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s, err := NewSession(endpointFor(t, "robot", addr, TransportWS), WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Teardown()

	s.Connect()
	waitState(t, s, StateClosed)
	if !errors.Is(s.LastError(), ErrConnectFailure) {
		t.Errorf("LastError = %v, want ErrConnectFailure", s.LastError())
	}
}

func TestTCPSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("{Heartbeat}{\"status\":{\"battery\":80}}\n"))

		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
		conn.Close()
	}()

	ep := endpointFor(t, "accessory", ln.Addr().String(), TransportTCP)
	s, err := NewSession(ep, WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Teardown()

	s.Connect()
	waitState(t, s, StateOpen)
	waitFor(t, "two frames", func() bool { return len(s.Inbox()) == 2 })
	if in := s.Inbox(); in[0].Text != "{Heartbeat}" || in[1].Text != `{"status":{"battery":80}}` {
		t.Errorf("inbox = %v", in)
	}

	s.Send(protocol.Actuate(protocol.SubsystemTreat, 1))
	select {
	case got := <-received:
		if got != `{"N":111,"D1":1}` {
			t.Errorf("peer got %s", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("peer received nothing")
	}

	waitState(t, s, StateClosed)
	if !errors.Is(s.LastError(), ErrPeerClosed) {
		t.Errorf("LastError = %v, want ErrPeerClosed", s.LastError())
	}
}

func TestUnsupportedTransport(t *testing.T) {
	_, err := NewNetDialer().Dial(context.Background(), Endpoint{Name: "x", Host: "h", Port: 1, Transport: "udp"})
	if err == nil {
		t.Error("expected error for udp")
	}
}
