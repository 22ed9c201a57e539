// Package session implements the DVR command channel (C2), the
// authenticator (C3, in authenticate.go), the session controller state
// machine (C4) and the heartbeat/liveness task (C5, in heartbeat.go).
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-dvr/internal/dvr/auth"
	"github.com/alxayo/go-dvr/internal/dvr/media"
	"github.com/alxayo/go-dvr/internal/dvr/wire"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
	"github.com/alxayo/go-dvr/internal/dvrlog"
)

const (
	createReplyTimeout = 5 * time.Second
	startReplyTimeout  = 3 * time.Second
	readerIdleTimeout  = 2 * time.Second
	teardownGap        = 200 * time.Millisecond
)

// Config holds the parameters needed to dial and authenticate a session.
type Config struct {
	Host       string
	CmdPort    int
	MediaPort  int
	Username   string
	Password   string
	Channel    int
	StreamType StreamType
	HashFunc   auth.HashFunc // optional override of the credential oracle
}

// Session is the logical object owned by the session controller: one
// command socket, one media socket once streaming, and the background
// reader/heartbeat tasks that service them.
type Session struct {
	ID string

	Config

	cmdConn net.Conn
	demuxer *media.Demuxer

	mediaSessionID uint32

	queue  commandQueue
	sendMu sync.Mutex

	stateMu sync.Mutex
	state   State

	dead            atomic.Bool
	userStopped     atomic.Bool
	lastHeartbeatNS atomic.Int64

	disconnectOnce sync.Once

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Session in the Idle state. Connect must be called before
// any other operation.
func New(cfg Config) *Session {
	id := uuid.New().String()
	return &Session{
		ID:     id,
		Config: cfg,
		log:    dvrlog.WithSession(dvrlog.Logger(), id, cfg.Host),
		state:  StateIdle,
	}
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// State returns the current controller state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setLastHeartbeat(t time.Time) { s.lastHeartbeatNS.Store(t.UnixNano()) }
func (s *Session) lastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeatNS.Load())
}

func (s *Session) markDead() {
	s.dead.Store(true)
	s.setState(StateDead)
}

// IsDead reports whether the reader, heartbeat, or any prior operation
// has declared the session unusable.
func (s *Session) IsDead() bool { return s.dead.Load() }

// Connect drives the full connect/stream-create/media-handshake/
// stream-start sequence. Timeouts and retries are intentionally absent
// here by design: the outer supervisor owns backoff.
func (s *Session) Connect(ctx context.Context) error {
	if s.StreamType != StreamTypeMain && s.StreamType != StreamTypeSub {
		return dvrerrors.NewProtocolError("session.connect", fmt.Errorf("stream type must be 1 (main) or 2 (sub), got %d", s.StreamType))
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.setState(StateConnecting)

	addr := fmt.Sprintf("%s:%d", s.Host, s.CmdPort)
	conn, err := (&net.Dialer{}).DialContext(s.ctx, "tcp", addr)
	if err != nil {
		return dvrerrors.NewTransportError("session.connect.dial", err)
	}
	if err := setAggressiveKeepalive(conn); err != nil {
		s.log.Warn("keepalive setup failed", "error", err)
	}
	s.cmdConn = conn

	if err := s.authenticate(); err != nil {
		_ = s.cmdConn.Close()
		return err
	}
	s.setState(StateAuthenticated)
	s.setLastHeartbeat(time.Now())

	s.wg.Add(2)
	go s.readerLoop()
	go s.heartbeatLoop()

	if err := s.createStream(); err != nil {
		return err
	}
	if err := s.openMedia(); err != nil {
		return err
	}
	if err := s.startStream(); err != nil {
		return err
	}
	s.setState(StateStreaming)
	return nil
}

func (s *Session) createStream() error {
	s.setState(StateAwaitingCreateReply)
	inner := fmt.Sprintf(`<RealStreamCreate Channel="%d" Mode="1" Type="%d"/>`, s.Channel, s.StreamType)
	if err := s.Send(CmdStreamCreate, inner); err != nil {
		return err
	}
	msg, ok := s.waitFor("RealStreamCreateReply", createReplyTimeout)
	if !ok {
		return dvrerrors.NewProtocolError("session.stream_create", fmt.Errorf("no reply within %s", createReplyTimeout))
	}
	sid, err := parseUintAttr(msg.body, "MediaSession")
	if err != nil {
		return dvrerrors.NewProtocolError("session.stream_create", err)
	}
	s.mediaSessionID = sid
	s.setState(StateStreamCreated)
	return nil
}

func (s *Session) openMedia() error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.MediaPort)
	conn, err := (&net.Dialer{}).DialContext(s.ctx, "tcp", addr)
	if err != nil {
		return dvrerrors.NewTransportError("session.open_media.dial", err)
	}
	if err := setAggressiveKeepalive(conn); err != nil {
		s.log.Warn("media keepalive setup failed", "error", err)
	}
	s.demuxer = media.NewDemuxerForChannel(conn, s.log, s.Channel)
	if err := s.demuxer.Handshake(s.mediaSessionID); err != nil {
		return err
	}
	s.setState(StateMediaOpen)
	return nil
}

func (s *Session) startStream() error {
	inner := fmt.Sprintf(`<RealStreamStart Channel="%d" Mode="1" Type="%d"/>`, s.Channel, s.StreamType)
	if err := s.Send(CmdStreamStart, inner); err != nil {
		return err
	}
	if _, ok := s.waitFor("RealStreamStartReply", startReplyTimeout); !ok {
		return dvrerrors.NewProtocolError("session.stream_start", fmt.Errorf("no reply within %s", startReplyTimeout))
	}
	return nil
}

// Send writes one command frame with a freshly allocated transaction id,
// guarded by the send mutex so every header+body pair reaches the wire
// atomically. Exactly one writer may use the socket at any instant.
func (s *Session) Send(cmdID int, inner string) error {
	body := wire.MakeCommandBody(cmdID, inner)
	hdr := wire.PackCommandHeader(len(body))
	return s.writeFrame(hdr, body)
}

// sendWithTxn is identical to Send but reuses an existing transaction id,
// used by the heartbeat reply which must echo the inbound notice's id.
func (s *Session) sendWithTxn(cmdID int, inner string, txn uint32) error {
	body := wire.MakeCommandBody(cmdID, inner)
	hdr := wire.PackCommandHeaderTxn(len(body), txn)
	return s.writeFrame(hdr, body)
}

func (s *Session) writeFrame(hdr, body []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if _, err := s.cmdConn.Write(hdr); err != nil {
		return dvrerrors.NewTransportError("session.send.header", err)
	}
	if _, err := s.cmdConn.Write(body); err != nil {
		return dvrerrors.NewTransportError("session.send.body", err)
	}
	return nil
}

// readerLoop is the single long-running task that services the command
// socket once authentication has completed. On clean EOF or I/O failure
// it marks the session dead and exits; timeouts are ignored.
func (s *Session) readerLoop() {
	defer s.wg.Done()
	for {
		if s.dead.Load() {
			return
		}
		hdr, body, err := wire.ReadMessage(s.cmdConn, readerIdleTimeout)
		if err != nil {
			if dvrerrors.IsTimeout(err) {
				continue
			}
			s.markDead()
			return
		}
		if hdr == nil {
			s.markDead()
			return
		}
		s.queue.push(queuedMessage{at: time.Now(), header: *hdr, body: wire.ParseBody(body)})
	}
}

// waitFor scans the queue for the first entry whose body contains tag,
// removing and returning it. Returns not-found if the deadline elapses or
// the session dies while waiting.
func (s *Session) waitFor(tag string, deadline time.Duration) (queuedMessage, bool) {
	const pollInterval = 100 * time.Millisecond
	end := time.Now().Add(deadline)
	for {
		if msg, ok := s.queue.takeFirst(tag); ok {
			return msg, true
		}
		if s.dead.Load() {
			return queuedMessage{}, false
		}
		if time.Now().After(end) {
			return queuedMessage{}, false
		}
		time.Sleep(pollInterval)
	}
}

// Frames exposes the demuxed media sequence as a Go 1.23 range-over-func
// iterator: for each (frame, err) pair yielded, iteration stops as soon as
// the consumer's loop body returns or the underlying session ends.
func (s *Session) Frames() iter.Seq2[media.Frame, error] {
	return func(yield func(media.Frame, error) bool) {
		for {
			frame, err := s.NextFrame(s.ctx)
			if err != nil {
				yield(media.Frame{}, err)
				return
			}
			if frame.Codec == 0 && frame.Data == nil {
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// NextFrame pulls the next demuxed frame, matching the spec's "finite
// sequence producer" description with a classic pull method for callers
// that prefer it over the iterator form. It returns a zero Frame and nil
// error to signal a clean end of stream.
func (s *Session) NextFrame(ctx context.Context) (media.Frame, error) {
	if s.dead.Load() || s.userStopped.Load() {
		return media.Frame{}, nil
	}
	const mediaReadTimeout = 5 * time.Second
	frame, ok, err := s.demuxer.ReadFrame(mediaReadTimeout)
	if err != nil {
		s.markDead()
		return media.Frame{}, err
	}
	if !ok {
		return media.Frame{}, nil
	}
	return frame, nil
}

// Disconnect is idempotent and safe to call concurrently with any reader
// or heartbeat task. It sends the graceful teardown commands only if the
// session is not already dead, then closes both sockets and resets state.
// A second call is a no-op.
func (s *Session) Disconnect() error {
	s.disconnectOnce.Do(func() {
		s.userStopped.Store(true)
		if !s.dead.Load() {
			s.Send(CmdStreamStop, fmt.Sprintf(`<RealStreamStop Channel="%d"/>`, s.Channel))
			time.Sleep(teardownGap)
			s.Send(CmdStreamDestroy, fmt.Sprintf(`<RealStreamDestroy Channel="%d"/>`, s.Channel))
			time.Sleep(teardownGap)
			s.Send(CmdLogout, `<Logout/>`)
			time.Sleep(teardownGap)
		}
		s.setState(StateTearingDown)
		if s.cancel != nil {
			s.cancel()
		}
		if s.demuxer != nil {
			_ = s.demuxer.Close()
		}
		if s.cmdConn != nil {
			_ = s.cmdConn.Close()
		}
		s.wg.Wait()
		s.setState(StateIdle)
	})
	return nil
}
