package wire

import (
	"net"
	"testing"
	"time"
)

func TestFramingRoundTrip(t *testing.T) {
	body := MakeCommandBody(26, `<LoginGetFlag UserName="admin"/>`)
	hdr := PackCommandHeader(len(body))

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		server.Write(hdr)
		server.Write(body)
	}()

	h, gotBody, err := ReadMessage(client, time.Second)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if h == nil {
		t.Fatal("unexpected EOF")
	}
	if h.Magic != CmdMagic {
		t.Fatalf("magic = %x, want %x", h.Magic, CmdMagic)
	}
	got := ParseBody(gotBody)
	want := string(body[:len(body)-1])
	if got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestTransactionMonotonicity(t *testing.T) {
	h1 := PackCommandHeader(0)
	h2 := PackCommandHeader(0)
	p1, err := ParseHeader(h1)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := ParseHeader(h2)
	if err != nil {
		t.Fatal(err)
	}
	if p2.Txn <= p1.Txn {
		t.Fatalf("txn not monotonic: %d -> %d", p1.Txn, p2.Txn)
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	server, client := net.Pipe()
	go server.Close()

	h, body, err := ReadMessage(client, time.Second)
	if err != nil {
		t.Fatalf("expected nil error on clean close, got %v", err)
	}
	if h != nil || body != nil {
		t.Fatalf("expected (nil, nil) on clean close, got (%v, %v)", h, body)
	}
}

func TestPackMediaHandshakeCarriesSessionID(t *testing.T) {
	buf := PackMediaHandshake(ProtocolVersion, 42)
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.F8 != 42 {
		t.Fatalf("session id = %d, want 42", h.F8)
	}
	if h.BodyLen != 3 || h.Txn != 4 {
		t.Fatalf("unexpected handshake header: %+v", h)
	}
}
