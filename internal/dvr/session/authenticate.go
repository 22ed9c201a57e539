package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/auth"
	"github.com/alxayo/go-dvr/internal/dvr/wire"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
)

var loginFlagAttr = regexp.MustCompile(`LoginFlag="([^"]*)"`)

const authReplyTimeout = 5 * time.Second

// authenticate runs the three-step challenge/response login on a freshly
// opened command connection, issued inline before the reader and
// heartbeat tasks start: LoginGetFlag for the server nonce, the device's
// credential hash, then UserLogin. All three steps must succeed or the
// caller must close the socket and fail. A hash failure or a rejected
// login is an AuthError; an I/O failure is a TransportError and a reply
// without a LoginFlag attribute is a ProtocolError.
func (s *Session) authenticate() error {
	nonce, err := s.loginGetFlag()
	if err != nil {
		return err
	}

	hash, err := auth.ComputeHash(s.HashFunc, nonce, s.Username, s.Password)
	if err != nil {
		return dvrerrors.NewAuthError("session.authenticate.hash", err)
	}

	return s.userLogin(hash)
}

func (s *Session) loginGetFlag() (string, error) {
	inner := fmt.Sprintf(`<LoginGetFlag UserName="%s"/>`, s.Username)
	if err := s.sendInline(CmdLoginGetFlag, inner); err != nil {
		return "", err
	}
	body, err := s.readInlineReply()
	if err != nil {
		return "", err
	}
	m := loginFlagAttr.FindStringSubmatch(body)
	if m == nil {
		return "", dvrerrors.NewProtocolError("session.login_get_flag", fmt.Errorf("missing LoginFlag attribute"))
	}
	return m[1], nil
}

func (s *Session) userLogin(hash string) error {
	inner := fmt.Sprintf(`<UserLogin UserName="%s" UserIP="192.168.1.1" UserMAC="00:00:00:00:00:00" LoginFlag="%s"/>`, s.Username, hash)
	if err := s.sendInline(CmdUserLogin, inner); err != nil {
		return err
	}
	body, err := s.readInlineReply()
	if err != nil {
		return err
	}
	if !containsSuccess(body) {
		return dvrerrors.NewAuthError("session.user_login", fmt.Errorf("login rejected: %s", body))
	}
	return nil
}

func containsSuccess(body string) bool {
	return strings.Contains(body, `CmdReply="0"`)
}

// sendInline writes one command frame during authentication. The writer
// side is still single-threaded at that point, but it routes through the
// same mutex-guarded Send() used once the session is fully up, keeping
// behavior uniform once the reader starts later.
func (s *Session) sendInline(cmdID int, inner string) error {
	return s.Send(cmdID, inner)
}

// readInlineReply reads one message directly off the wire, used only
// during authentication before the reader goroutine exists.
func (s *Session) readInlineReply() (string, error) {
	hdr, body, err := wire.ReadMessage(s.cmdConn, authReplyTimeout)
	if err != nil {
		return "", dvrerrors.NewTransportError("session.read_auth_reply", err)
	}
	if hdr == nil {
		return "", dvrerrors.NewTransportError("session.read_auth_reply", fmt.Errorf("connection closed"))
	}
	return wire.ParseBody(body), nil
}
