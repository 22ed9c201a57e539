// Package wire implements the HiEasy DVR framed protocol: fixed 36-byte
// big-endian headers shared by both the command and media channels, null
// terminated XML command bodies, and the process-wide transaction id
// allocator.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/alxayo/go-dvr/internal/dvrerrors"
)

const (
	// HeaderSize is the fixed size, in bytes, of every frame header on
	// either channel.
	HeaderSize = 36

	// CmdMagic identifies a command-channel frame.
	CmdMagic uint32 = 0x05011154
	// MediaMagic identifies a media-channel frame (both the handshake and
	// subsequent data records).
	MediaMagic uint32 = 0x05011150
	// ProtocolVersion is the fixed protocol version carried in command
	// headers.
	ProtocolVersion uint32 = 0x00001001
	// CmdChannelClass is the fixed channel-class value (field 5) on the
	// command channel.
	CmdChannelClass uint32 = 3
)

// txnCounter is the process-wide monotonic transaction id allocator. It
// starts at 0x10000 so the first allocated id, after the pre-increment, is
// 0x10001 as required.
var txnCounter uint32 = 0x10000

// NextTransactionID returns the next transaction id. Wraparound of the
// underlying uint32 is not observable in practice and is not treated as an
// error condition.
func NextTransactionID() uint32 {
	return atomic.AddUint32(&txnCounter, 1)
}

// Header is the nine-field, 36-byte big-endian frame header shared by both
// channels. Field meaning depends on which channel it is read from; see
// the command and media constructors below.
type Header struct {
	Magic       uint32
	Version     uint32
	Txn         uint32
	Reserved    uint32
	BodyLen     uint32
	ChannelOrV6 uint32
	F6          uint32
	F7          uint32
	F8          uint32
}

// Bytes packs the header into its 36-byte wire representation.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.Txn)
	binary.BigEndian.PutUint32(buf[12:16], h.Reserved)
	binary.BigEndian.PutUint32(buf[16:20], h.BodyLen)
	binary.BigEndian.PutUint32(buf[20:24], h.ChannelOrV6)
	binary.BigEndian.PutUint32(buf[24:28], h.F6)
	binary.BigEndian.PutUint32(buf[28:32], h.F7)
	binary.BigEndian.PutUint32(buf[32:36], h.F8)
	return buf
}

// ParseHeader decodes a 36-byte buffer into a Header. The caller must
// supply exactly HeaderSize bytes.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(buf[0:4]),
		Version:     binary.BigEndian.Uint32(buf[4:8]),
		Txn:         binary.BigEndian.Uint32(buf[8:12]),
		Reserved:    binary.BigEndian.Uint32(buf[12:16]),
		BodyLen:     binary.BigEndian.Uint32(buf[16:20]),
		ChannelOrV6: binary.BigEndian.Uint32(buf[20:24]),
		F6:          binary.BigEndian.Uint32(buf[24:28]),
		F7:          binary.BigEndian.Uint32(buf[28:32]),
		F8:          binary.BigEndian.Uint32(buf[32:36]),
	}, nil
}

// PackCommandHeader builds a command-channel header for a body of bodyLen
// bytes, allocating a fresh transaction id.
func PackCommandHeader(bodyLen int) []byte {
	h := Header{
		Magic:       CmdMagic,
		Version:     ProtocolVersion,
		Txn:         NextTransactionID(),
		BodyLen:     uint32(bodyLen),
		ChannelOrV6: CmdChannelClass,
	}
	return h.Bytes()
}

// PackCommandHeaderTxn is identical to PackCommandHeader but reuses an
// existing transaction id instead of allocating a new one, used by the
// heartbeat reply which must echo the inbound notice's id.
func PackCommandHeaderTxn(bodyLen int, txn uint32) []byte {
	h := Header{
		Magic:       CmdMagic,
		Version:     ProtocolVersion,
		Txn:         txn,
		BodyLen:     uint32(bodyLen),
		ChannelOrV6: CmdChannelClass,
	}
	return h.Bytes()
}

// PackMediaHandshake builds the 36-byte media-channel handshake frame that
// carries the media session id in field 8.
func PackMediaHandshake(version, sessionID uint32) []byte {
	h := Header{
		Magic:       MediaMagic,
		Version:     version,
		Txn:         4,
		Reserved:    0,
		BodyLen:     3,
		ChannelOrV6: 0,
		F8:          sessionID,
	}
	return h.Bytes()
}

// MakeCommandBody wraps inner XML fragment in the standard DVR envelope and
// appends the trailing NUL byte that is part of the payload.
func MakeCommandBody(cmdID int, innerXML string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="GB2312" standalone="yes" ?>` + "\n")
	fmt.Fprintf(&buf, `<Command ID="%d">`+"\n", cmdID)
	buf.WriteString("    " + innerXML + "\n")
	buf.WriteString("</Command>\n")
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseBody decodes a raw body as UTF-8, stripping a trailing NUL if
// present. The device's XML is treated as a byte sequence, not validated
// against a strict schema, matching the permissive tolerance the protocol
// requires for its GB2312 declaration.
func ParseBody(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b)
}

// ReadMessage reads exactly one framed message from conn: the 36-byte
// header, then header.BodyLen body bytes. A timeout (deadline exceeded
// without any bytes consumed) is surfaced as a net.Error with Timeout()
// true and must not be treated as EOF. A clean close before any header
// bytes arrive is reported as (nil, nil, nil) — an orderly EOF. A short
// read partway through the header, or partway through the body, is a
// TransportError: the device protocol guarantees whole frames, so a
// partial frame means the connection is unrecoverable.
func ReadMessage(conn net.Conn, timeout time.Duration) (*Header, []byte, error) {
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	hdrBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(conn, hdrBuf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, nil, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, err
		}
		return nil, nil, dvrerrors.NewTransportError("wire.read_header", err)
	}

	hdr, err := ParseHeader(hdrBuf)
	if err != nil {
		return nil, nil, dvrerrors.NewProtocolError("wire.parse_header", err)
	}

	if hdr.BodyLen == 0 {
		return &hdr, nil, nil
	}

	body := make([]byte, hdr.BodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, err
		}
		return nil, nil, dvrerrors.NewTransportError("wire.read_body", err)
	}
	return &hdr, body, nil
}
