package session

import (
	"strings"
	"time"

	"github.com/alxayo/go-dvr/internal/dvr/metrics"
)

// heartbeatMissBudget is the maximum silence since the last observed
// heartbeat before the session is declared dead. The device emits
// unsolicited heartbeats roughly every 5-15s and will itself close
// sessions that fail to acknowledge them; this budget gives margin for
// transient jitter while staying well under the device's own timeout.
const heartbeatMissBudget = 45 * time.Second

// heartbeatLoop runs once per second for the life of the session. Each
// tick it scans the queue for an unanswered HeartBeatNotice, replies with
// the same transaction id, and checks the miss budget.
func (s *Session) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.tick() {
				return
			}
		}
	}
}

// tick processes one heartbeat interval; it returns true if the session
// should be considered dead and the loop should exit.
func (s *Session) tick() bool {
	msg, found := s.queue.takeFirstMatching(func(body string) bool {
		return strings.Contains(body, "HeartBeatNotice") && !strings.Contains(body, "Reply")
	})
	if found {
		s.setLastHeartbeat(time.Now())
		reply := `<HeartBeatNoticeReply CmdReply="0" NetDataFlow="0" NetHistoryDataFlow="0"/>`
		if err := s.sendWithTxn(CmdHeartBeatReply, reply, msg.header.Txn); err != nil {
			s.markDead()
			return true
		}
	}

	if time.Since(s.lastHeartbeat()) > heartbeatMissBudget {
		metrics.HeartbeatMisses.Inc()
		s.markDead()
		return true
	}
	return false
}
