package session

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/wire"
)

// fakeDevice is a minimal synthetic HiEasy DVR used to exercise the
// session controller end to end over real TCP sockets on the loopback
// interface, the same style as the teacher's tests/integration suite.
type fakeDevice struct {
	cmdListener   net.Listener
	mediaListener net.Listener
}

func startFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	cmdL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen cmd: %v", err)
	}
	mediaL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen media: %v", err)
	}
	return &fakeDevice{cmdListener: cmdL, mediaListener: mediaL}
}

func (d *fakeDevice) cmdPort() int   { return d.cmdListener.Addr().(*net.TCPAddr).Port }
func (d *fakeDevice) mediaPort() int { return d.mediaListener.Addr().(*net.TCPAddr).Port }

func (d *fakeDevice) close() {
	d.cmdListener.Close()
	d.mediaListener.Close()
}

// serveCommandChannel accepts one connection and responds to the handshake
// + stream lifecycle per the happy path scenarios, then optionally fires a
// heartbeat notice. It records every inbound command id it sees.
func (d *fakeDevice) serveCommandChannel(t *testing.T, seenCh chan<- int, sendHeartbeat bool) {
	conn, err := d.cmdListener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	heartbeatSent := false
	for {
		hdr, body, err := wire.ReadMessage(conn, 10*time.Second)
		if err != nil || hdr == nil {
			return
		}
		text := wire.ParseBody(body)
		seenCh <- int(cmdIDFromBody(text))

		switch {
		case strings.Contains(text, "LoginGetFlag"):
			reply := wire.MakeCommandBody(CmdLoginGetFlagReply, `<LoginGetFlagReply LoginFlag="ABC123"/>`)
			conn.Write(wire.PackCommandHeaderTxn(len(reply), hdr.Txn))
			conn.Write(reply)
		case strings.Contains(text, "UserLogin"):
			reply := wire.MakeCommandBody(CmdUserLoginReply, `<UserLoginReply CmdReply="0"/>`)
			conn.Write(wire.PackCommandHeaderTxn(len(reply), hdr.Txn))
			conn.Write(reply)
			if sendHeartbeat && !heartbeatSent {
				heartbeatSent = true
				go func() {
					time.Sleep(50 * time.Millisecond)
					notice := wire.MakeCommandBody(CmdHeartBeatNotice, `<HeartBeatNotice/>`)
					conn.Write(wire.PackCommandHeaderTxn(len(notice), 999))
					conn.Write(notice)
				}()
			}
		case strings.Contains(text, "RealStreamCreate"):
			reply := wire.MakeCommandBody(CmdStreamCreateReply, `<RealStreamCreateReply MediaSession="42"/>`)
			conn.Write(wire.PackCommandHeaderTxn(len(reply), hdr.Txn))
			conn.Write(reply)
		case strings.Contains(text, "RealStreamStart"):
			reply := wire.MakeCommandBody(CmdStreamStartReply, `<RealStreamStartReply CmdReply="0"/>`)
			conn.Write(wire.PackCommandHeaderTxn(len(reply), hdr.Txn))
			conn.Write(reply)
		}
	}
}

func cmdIDFromBody(body string) int {
	switch {
	case strings.Contains(body, "LoginGetFlag"):
		return CmdLoginGetFlag
	case strings.Contains(body, "UserLogin"):
		return CmdUserLogin
	case strings.Contains(body, "RealStreamCreate"):
		return CmdStreamCreate
	case strings.Contains(body, "RealStreamStart"):
		return CmdStreamStart
	case strings.Contains(body, "RealStreamStop"):
		return CmdStreamStop
	case strings.Contains(body, "RealStreamDestroy"):
		return CmdStreamDestroy
	case strings.Contains(body, "Logout"):
		return CmdLogout
	case strings.Contains(body, "HeartBeatNoticeReply"):
		return CmdHeartBeatReply
	}
	return -1
}

func (d *fakeDevice) serveMediaHandshake(t *testing.T) {
	conn, err := d.mediaListener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	buf := make([]byte, wire.HeaderSize)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		return
	}
	conn.Write(make([]byte, wire.HeaderSize))
	time.Sleep(200 * time.Millisecond)
}

func TestHappyPathLoginAndStreamCreate(t *testing.T) {
	dev := startFakeDevice(t)
	defer dev.close()

	seen := make(chan int, 16)
	go dev.serveCommandChannel(t, seen, false)
	go dev.serveMediaHandshake(t)

	s := New(Config{
		Host:       "127.0.0.1",
		CmdPort:    dev.cmdPort(),
		MediaPort:  dev.mediaPort(),
		Username:   "admin",
		Password:   "123456",
		Channel:    0,
		StreamType: StreamTypeMain,
	})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	if s.State() != StateStreaming {
		t.Fatalf("state = %v, want streaming", s.State())
	}
	if s.mediaSessionID != 42 {
		t.Fatalf("media session id = %d, want 42", s.mediaSessionID)
	}

	var ids []int
	timeout := time.After(time.Second)
loop:
	for len(ids) < 2 {
		select {
		case id := <-seen:
			ids = append(ids, id)
		case <-timeout:
			break loop
		}
	}
	if len(ids) < 2 || ids[0] != CmdLoginGetFlag || ids[1] != CmdUserLogin {
		t.Fatalf("unexpected command sequence: %v", ids)
	}
}

func TestHeartbeatAutoReply(t *testing.T) {
	dev := startFakeDevice(t)
	defer dev.close()

	seen := make(chan int, 16)
	go dev.serveCommandChannel(t, seen, true)
	go dev.serveMediaHandshake(t)

	s := New(Config{
		Host:       "127.0.0.1",
		CmdPort:    dev.cmdPort(),
		MediaPort:  dev.mediaPort(),
		Username:   "admin",
		Password:   "123456",
		Channel:    0,
		StreamType: StreamTypeMain,
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect()

	deadline := time.After(1100 * time.Millisecond)
	for {
		select {
		case id := <-seen:
			if id == CmdHeartBeatReply {
				return
			}
		case <-deadline:
			t.Fatal("expected a HeartBeatNoticeReply within 1.1s of the notice")
		}
	}
}

func TestDisconnectIsIdempotentAndGraceful(t *testing.T) {
	dev := startFakeDevice(t)
	defer dev.close()

	seen := make(chan int, 16)
	go dev.serveCommandChannel(t, seen, false)
	go dev.serveMediaHandshake(t)

	s := New(Config{
		Host:       "127.0.0.1",
		CmdPort:    dev.cmdPort(),
		MediaPort:  dev.mediaPort(),
		Username:   "admin",
		Password:   "123456",
		Channel:    0,
		StreamType: StreamTypeMain,
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Drain the login/create/start commands before asserting teardown order.
	for i := 0; i < 4; i++ {
		<-seen
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	var order []int
	timeout := time.After(2 * time.Second)
collect:
	for len(order) < 3 {
		select {
		case id := <-seen:
			order = append(order, id)
		case <-timeout:
			break collect
		}
	}
	want := fmt.Sprintf("%v", []int{CmdStreamStop, CmdStreamDestroy, CmdLogout})
	got := fmt.Sprintf("%v", order)
	if got != want {
		t.Fatalf("teardown order = %s, want %s", got, want)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("second Disconnect should be a no-op, got %v", err)
	}
}
