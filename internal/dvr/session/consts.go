package session

// Command IDs used on the command channel. Reply ids are always request+1.
const (
	CmdGetCfg              = 14
	CmdUserLogin           = 24
	CmdUserLoginReply      = 25
	CmdLoginGetFlag        = 26
	CmdLoginGetFlagReply   = 27
	CmdLogout              = 28
	CmdLogoutReply         = 29
	CmdHeartBeatNotice     = 78
	CmdHeartBeatReply      = 79
	CmdStreamCreate        = 136
	CmdStreamCreateReply   = 137
	CmdStreamStart         = 138
	CmdStreamStartReply    = 139
	CmdStreamStop          = 140
	CmdStreamStopReply     = 141
	CmdStreamDestroy       = 142
	CmdStreamDestroyReply  = 143
)

// StreamType selects main or sub stream. 1=main, 2=sub is treated as
// authoritative per the protocol's design notes.
type StreamType int

const (
	StreamTypeMain StreamType = 1
	StreamTypeSub  StreamType = 2
)

// State is the session controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateAwaitingCreateReply
	StateStreamCreated
	StateMediaOpen
	StateStreaming
	StateTearingDown
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateAwaitingCreateReply:
		return "awaiting_create_reply"
	case StateStreamCreated:
		return "stream_created"
	case StateMediaOpen:
		return "media_open"
	case StateStreaming:
		return "streaming"
	case StateTearingDown:
		return "tearing_down"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}
