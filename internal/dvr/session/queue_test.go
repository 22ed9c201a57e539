package session

import (
	"strings"
	"testing"

	"github.com/alxayo/go-dvr/internal/dvr/wire"
)

func TestQueueReaderWaiterOrdering(t *testing.T) {
	var q commandQueue
	q.push(queuedMessage{header: wire.Header{Txn: 1}, body: "tag=A msg1"})
	q.push(queuedMessage{header: wire.Header{Txn: 2}, body: "tag=B msg2"})
	q.push(queuedMessage{header: wire.Header{Txn: 3}, body: "tag=A msg3"})

	first, ok := q.takeFirst("tag=A")
	if !ok || first.header.Txn != 1 {
		t.Fatalf("expected M1 (txn=1), got ok=%v txn=%d", ok, first.header.Txn)
	}

	second, ok := q.takeFirst("tag=A")
	if !ok || second.header.Txn != 3 {
		t.Fatalf("expected M3 (txn=3), got ok=%v txn=%d", ok, second.header.Txn)
	}

	if len(q.items) != 1 || q.items[0].header.Txn != 2 {
		t.Fatalf("expected M2 left behind, got %+v", q.items)
	}
}

func TestQueueTakeFirstMatchingExcludesReplies(t *testing.T) {
	var q commandQueue
	q.push(queuedMessage{body: `<HeartBeatNoticeReply CmdReply="0"/>`})
	q.push(queuedMessage{header: wire.Header{Txn: 99}, body: `<HeartBeatNotice .../>`})

	msg, ok := q.takeFirstMatching(func(body string) bool {
		return strings.Contains(body, "HeartBeatNotice") && !strings.Contains(body, "Reply")
	})
	if !ok || msg.header.Txn != 99 {
		t.Fatalf("expected the plain notice (txn=99), got ok=%v txn=%d", ok, msg.header.Txn)
	}
}
