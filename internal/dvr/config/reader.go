package config

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/auth"
	"github.com/alxayo/go-dvr/internal/dvr/wire"
	"github.com/alxayo/go-dvr/internal/dvrerrors"
	"github.com/alxayo/go-dvr/internal/dvrlog"
)

const (
	cmdGetCfg            = 14
	cmdUserLogin         = 24
	cmdLoginGetFlag      = 26
	cmdHeartBeatReply    = 79
	getCfgReplyAttempts  = 5
	getCfgReplyRecvWait  = 5 * time.Second
	loginReplyRecvWait   = 5 * time.Second
	defaultAssistCmd     = -1
)

// Reader is a short-lived instance of the command channel + authenticator
// used purely for control-plane reads: connect, log in, issue GetCfg
// requests, disconnect.
type Reader struct {
	conn     net.Conn
	username string
	password string
	hashFunc auth.HashFunc
	log      *slog.Logger
}

// Dial opens a new command connection and logs in, returning a Reader
// ready to issue GetCfg requests.
func Dial(ctx context.Context, host string, cmdPort int, username, password string, hashFunc auth.HashFunc) (*Reader, error) {
	addr := fmt.Sprintf("%s:%d", host, cmdPort)
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, dvrerrors.NewTransportError("config.dial", err)
	}
	r := &Reader{conn: conn, username: username, password: password, hashFunc: hashFunc, log: dvrlog.Logger()}
	if err := r.login(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) login() error {
	nonce, err := r.loginGetFlag()
	if err != nil {
		return err
	}
	hash, err := auth.ComputeHash(r.hashFunc, nonce, r.username, r.password)
	if err != nil {
		return dvrerrors.NewAuthError("config.login.hash", err)
	}
	return r.userLogin(hash)
}

var loginFlagAttr = regexp.MustCompile(`LoginFlag="([^"]*)"`)

func (r *Reader) loginGetFlag() (string, error) {
	inner := fmt.Sprintf(`<LoginGetFlag UserName="%s"/>`, r.username)
	if err := r.send(cmdLoginGetFlag, inner); err != nil {
		return "", err
	}
	_, body, err := wire.ReadMessage(r.conn, loginReplyRecvWait)
	if err != nil {
		return "", dvrerrors.NewTransportError("config.login_get_flag", err)
	}
	text := wire.ParseBody(body)
	m := loginFlagAttr.FindStringSubmatch(text)
	if m == nil {
		return "", dvrerrors.NewProtocolError("config.login_get_flag", fmt.Errorf("missing LoginFlag"))
	}
	return m[1], nil
}

func (r *Reader) userLogin(hash string) error {
	inner := fmt.Sprintf(`<UserLogin UserName="%s" UserIP="192.168.1.1" UserMAC="00:00:00:00:00:00" LoginFlag="%s"/>`, r.username, hash)
	if err := r.send(cmdUserLogin, inner); err != nil {
		return err
	}
	_, body, err := wire.ReadMessage(r.conn, loginReplyRecvWait)
	if err != nil {
		return dvrerrors.NewTransportError("config.user_login", err)
	}
	if !strings.Contains(wire.ParseBody(body), `CmdReply="0"`) {
		return dvrerrors.NewAuthError("config.user_login", fmt.Errorf("login rejected"))
	}
	return nil
}

func (r *Reader) send(cmdID int, inner string) error {
	body := wire.MakeCommandBody(cmdID, inner)
	hdr := wire.PackCommandHeader(len(body))
	if _, err := r.conn.Write(hdr); err != nil {
		return dvrerrors.NewTransportError("config.send", err)
	}
	if _, err := r.conn.Write(body); err != nil {
		return dvrerrors.NewTransportError("config.send", err)
	}
	return nil
}

// Record is one parsed GetCfg reply.
type Record struct {
	ConfigLen int
	Version   string
	CmdReply  string
	MainCmd   int
	AssistCmd int
	Data      map[string]any
	Error     string
}

// GetConfig issues GetCfg for mainCmd/assistCmd (default -1) and parses
// the reply. Heartbeats encountered while waiting are answered inline
// with id 79 and skipped; after five consecutive non-matching messages
// the call fails with a protocol error.
func (r *Reader) GetConfig(mainCmd int, assistCmd int) (Record, error) {
	inner := fmt.Sprintf(`<GetCfg MainCmd="%d" AssistCmd="%d"/>`, mainCmd, assistCmd)
	if err := r.send(cmdGetCfg, inner); err != nil {
		return Record{}, err
	}

	for attempt := 0; attempt < getCfgReplyAttempts; attempt++ {
		_, body, err := wire.ReadMessage(r.conn, getCfgReplyRecvWait)
		if err != nil {
			return Record{}, dvrerrors.NewTransportError("config.get_config", err)
		}
		text := wire.ParseBody(body)
		if strings.Contains(text, "HeartBeatNotice") && !strings.Contains(text, "Reply") {
			reply := `<HeartBeatNoticeReply CmdReply="0" NetDataFlow="0" NetHistoryDataFlow="0"/>`
			_ = r.send(cmdHeartBeatReply, reply)
			continue
		}
		return parseConfigReply(text)
	}
	return Record{}, dvrerrors.NewProtocolError("config.get_config", fmt.Errorf("no reply after %d heartbeats", getCfgReplyAttempts))
}

// GetAllConfigs iterates the full config-type registry, returning every
// successfully retrieved record; failures for individual main_cmds are
// attached to their Record's Error field rather than aborting the batch.
func (r *Reader) GetAllConfigs() []Record {
	records := make([]Record, 0, len(Registry))
	for _, t := range Registry {
		rec, err := r.GetConfig(t.MainCmd, defaultAssistCmd)
		if err != nil {
			rec = Record{MainCmd: t.MainCmd, Error: err.Error()}
		}
		records = append(records, rec)
	}
	return records
}

// Close disconnects the underlying command connection.
func (r *Reader) Close() error { return r.conn.Close() }

var (
	configLenAttr = regexp.MustCompile(`ConfigLen="([^"]*)"`)
	versionAttr   = regexp.MustCompile(`Version="([^"]*)"`)
	cmdReplyAttr  = regexp.MustCompile(`CmdReply="([^"]*)"`)
	mainCmdAttr   = regexp.MustCompile(`MainCmd="([^"]*)"`)
	assistCmdAttr = regexp.MustCompile(`AssistCmd="([^"]*)"`)
)

// xmlNode is a generic recursive XML element used to turn the device's
// flat CfgInfo reply into an attribute/child tree without a fixed schema
// per main_cmd.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n xmlNode) toMap() map[string]any {
	m := make(map[string]any)
	for _, a := range n.Attrs {
		m[a.Name.Local] = a.Value
	}
	for _, c := range n.Nodes {
		m[c.XMLName.Local] = c.toMap()
	}
	if text := strings.TrimSpace(n.Content); text != "" && len(n.Nodes) == 0 && len(n.Attrs) == 0 {
		m["_text"] = text
	}
	return m
}

func parseConfigReply(text string) (Record, error) {
	stripped := stripXMLDecl(text)
	var root xmlNode
	if err := xml.Unmarshal([]byte(stripped), &root); err != nil {
		return Record{}, dvrerrors.NewProtocolError("config.parse_reply", err)
	}

	rec := Record{}
	if m := configLenAttr.FindStringSubmatch(text); m != nil {
		fmt.Sscanf(m[1], "%d", &rec.ConfigLen)
	}
	if m := versionAttr.FindStringSubmatch(text); m != nil {
		rec.Version = m[1]
	}
	if m := cmdReplyAttr.FindStringSubmatch(text); m != nil {
		rec.CmdReply = m[1]
	}
	if m := mainCmdAttr.FindStringSubmatch(text); m != nil {
		fmt.Sscanf(m[1], "%d", &rec.MainCmd)
	}
	if m := assistCmdAttr.FindStringSubmatch(text); m != nil {
		fmt.Sscanf(m[1], "%d", &rec.AssistCmd)
	}
	rec.Data = root.toMap()
	if rec.CmdReply != "" && rec.CmdReply != "0" {
		rec.Error = fmt.Sprintf("device returned CmdReply=%s", rec.CmdReply)
	}
	return rec, nil
}

func stripXMLDecl(text string) string {
	if i := strings.Index(text, "?>"); i >= 0 {
		text = text[i+2:]
	}
	return strings.TrimSpace(text)
}
