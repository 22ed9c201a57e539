// Package media implements the DVR media channel: the handshake on the
// second TCP connection, framing of media data records, and extraction of
// a clean Annex-B H.264 byte sequence from the vendor NAL dialect the
// device wraps each frame in.
package media

import (
	"encoding/binary"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/alxayo/go-dvr/internal/bufpool"
	"github.com/alxayo/go-dvr/internal/dvr/metrics"
	"github.com/alxayo/go-dvr/internal/dvr/wire"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
)

// H264Codec is the codec tag value for H.264 carried at combined offset
// 68..71 of a media data record.
const H264Codec uint32 = 3

// subHeaderSize is the size of the sub-header that follows the 36-byte
// frame header in every media data record.
const subHeaderSize = 44

// minFramedBytes is the minimum number of bytes that must be buffered
// before a magic match at the buffer head is trusted: header + enough of
// the sub-header to read the payload length at combined offset 12..15 and
// the codec tag at 68..71 (inside the 44-byte sub-header).
const minFramedBytes = 80

// Frame is one demuxed media sample: a codec tag and its sanitised
// Annex-B H.264 payload (may be empty if no NAL passed the filter).
type Frame struct {
	Codec uint32
	Data  []byte
}

// Demuxer owns the media TCP connection and the byte-wise resync loop
// that turns its stream into a sequence of Frame values.
type Demuxer struct {
	conn    net.Conn
	log     *slog.Logger
	channel string
	buf     []byte

	consecutiveTimeouts int
}

// NewDemuxer wraps an already-dialled media connection.
func NewDemuxer(conn net.Conn, log *slog.Logger) *Demuxer {
	return &Demuxer{conn: conn, log: log, channel: "0"}
}

// NewDemuxerForChannel is like NewDemuxer but labels emitted metrics with
// the channel number.
func NewDemuxerForChannel(conn net.Conn, log *slog.Logger, channel int) *Demuxer {
	return &Demuxer{conn: conn, log: log, channel: strconv.Itoa(channel)}
}

// Handshake sends the 36-byte media handshake carrying sessionID and
// discards the device's 36-byte reply.
func (d *Demuxer) Handshake(sessionID uint32) error {
	if _, err := d.conn.Write(wire.PackMediaHandshake(wire.ProtocolVersion, sessionID)); err != nil {
		return dvrerrors.NewTransportError("media.handshake_send", err)
	}
	reply := make([]byte, wire.HeaderSize)
	if err := readFull(d.conn, reply, 5*time.Second); err != nil {
		return dvrerrors.NewTransportError("media.handshake_reply", err)
	}
	return nil
}

func readFull(conn net.Conn, buf []byte, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads up to 64KiB at a time, resyncs on the media magic, waits
// for a complete record, and returns its demuxed Frame. A clean EOF
// returns (Frame{}, false, nil), signalled by the ok result; three consecutive read
// timeouts return a TimeoutError; any other I/O error is fatal.
func (d *Demuxer) ReadFrame(timeout time.Duration) (Frame, bool, error) {
	for {
		frame, ok, err := d.tryExtractFrame()
		if err != nil || ok {
			return frame, ok, err
		}

		_ = d.conn.SetReadDeadline(time.Now().Add(timeout))
		chunk := bufpool.Get(64 * 1024)
		n, err := d.conn.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			d.consecutiveTimeouts = 0
		}
		bufpool.Put(chunk)
		if err != nil {
			if n > 0 {
				continue
			}
			if ne, okNet := err.(net.Error); okNet && ne.Timeout() {
				d.consecutiveTimeouts++
				if d.consecutiveTimeouts >= 3 {
					return Frame{}, false, dvrerrors.NewTimeoutError("media.read_loop", timeout, nil)
				}
				continue
			}
			if isEOF(err) {
				return Frame{}, false, nil
			}
			return Frame{}, false, dvrerrors.NewTransportError("media.read", err)
		}
	}
}

func isEOF(err error) bool {
	return err.Error() == "EOF"
}

// tryExtractFrame attempts to slice one complete record out of the
// buffered bytes. ok is false when more data must be read first.
func (d *Demuxer) tryExtractFrame() (Frame, bool, error) {
	for len(d.buf) > 0 {
		if len(d.buf) < 4 {
			return Frame{}, false, nil
		}
		if binary.BigEndian.Uint32(d.buf[:4]) != wire.MediaMagic {
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < minFramedBytes {
			return Frame{}, false, nil
		}
		payloadLen := binary.BigEndian.Uint32(d.buf[12:16])
		total := wire.HeaderSize + subHeaderSize + int(payloadLen)
		if len(d.buf) < total {
			return Frame{}, false, nil
		}
		codec := binary.BigEndian.Uint32(d.buf[68:72])
		payload := make([]byte, payloadLen)
		copy(payload, d.buf[wire.HeaderSize+subHeaderSize:total])
		d.buf = d.buf[total:]

		kept := ExtractH264(payload)
		metrics.FramesDemuxed.WithLabelValues(d.channel).Inc()
		metrics.NALBytesKept.WithLabelValues(d.channel).Add(float64(len(kept)))
		if dropped := len(payload) - len(kept); dropped > 0 {
			metrics.NALBytesDropped.WithLabelValues(d.channel).Add(float64(dropped))
		}
		return Frame{Codec: codec, Data: kept}, true, nil
	}
	return Frame{}, false, nil
}

// Close closes the underlying media connection.
func (d *Demuxer) Close() error { return d.conn.Close() }
