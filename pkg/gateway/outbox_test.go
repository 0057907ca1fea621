package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundQueueDropsOldestNonTerminalOnOverflow(t *testing.T) {
	q := newOutboundQueue(2)

	q.push(outMessage{Type: "progress", OperationID: "op-1"})
	q.push(outMessage{Type: "progress", OperationID: "op-2"})
	q.push(outMessage{Type: "progress", OperationID: "op-3"})

	got := q.drain()
	require.Len(t, got, 2)
	assert.Equal(t, "op-2", got[0].OperationID)
	assert.Equal(t, "op-3", got[1].OperationID)
}

func TestOutboundQueueNeverDropsTerminalMessages(t *testing.T) {
	q := newOutboundQueue(2)

	q.push(outMessage{Type: "complete", OperationID: "op-1"})
	q.push(outMessage{Type: "complete", OperationID: "op-2"})
	// Both buffered slots are now terminal; a further push must not evict
	// either of them even though the queue is over capacity.
	q.push(outMessage{Type: "failed", OperationID: "op-3"})

	got := q.drain()
	require.Len(t, got, 3)
	ops := []string{got[0].OperationID, got[1].OperationID, got[2].OperationID}
	assert.Equal(t, []string{"op-1", "op-2", "op-3"}, ops)
}

func TestOutboundQueuePrefersEvictingNonTerminalAmongMixedBacklog(t *testing.T) {
	q := newOutboundQueue(2)

	q.push(outMessage{Type: "complete", OperationID: "op-1"})
	q.push(outMessage{Type: "progress", OperationID: "op-2"})
	q.push(outMessage{Type: "progress", OperationID: "op-3"})

	got := q.drain()
	require.Len(t, got, 2)
	assert.Equal(t, "op-1", got[0].OperationID)
	assert.Equal(t, "op-3", got[1].OperationID)
}

func TestOutboundQueueCloseStopsNotify(t *testing.T) {
	q := newOutboundQueue(4)
	q.push(outMessage{Type: "progress"})
	q.close()

	_, open := <-q.notify
	assert.True(t, open, "close must not discard an already-pending notify signal")
	_, open = <-q.notify
	assert.False(t, open, "notify channel must be closed")
}
