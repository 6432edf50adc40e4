package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/data"
)

// MockGroup connects the workers of a job within a single process. Blocks are
// copied on send, so that no memory is shared between workers.
type MockGroup struct {
	lock      sync.RWMutex
	receivers []data.Receiver
}

// NewMockGroup creates a MockGroup of numWorkers workers
func NewMockGroup(numWorkers int) *MockGroup {
	return &MockGroup{receivers: make([]data.Receiver, numWorkers)}
}

// NumWorkers returns the size of the group
func (g *MockGroup) NumWorkers() int {
	return len(g.receivers)
}

// Attach registers the Receiver for a worker's inbound traffic
func (g *MockGroup) Attach(rank int, r data.Receiver) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.receivers[rank] = r
}

// Transport returns the Transport used by the worker with the given rank
func (g *MockGroup) Transport(rank int) data.Transport {
	return &mockTransport{group: g, rank: rank}
}

func (g *MockGroup) receiver(rank int) (data.Receiver, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	if rank < 0 || rank >= len(g.receivers) {
		return nil, errors.UnknownPeerError{Rank: rank}
	}
	if g.receivers[rank] == nil {
		return nil, fmt.Errorf("Worker %d has not attached to the group", rank)
	}
	return g.receivers[rank], nil
}

type mockTransport struct {
	group *MockGroup
	rank  int
}

func (t *mockTransport) OpenStream(ctx context.Context, peer int, channelID uint64) (data.BlockStream, error) {
	r, err := t.group.receiver(peer)
	if err != nil {
		return nil, err
	}
	return &mockStream{to: r, from: t.rank, channelID: channelID}, nil
}

type mockStream struct {
	to        data.Receiver
	from      int
	channelID uint64
	closed    bool
}

func (s *mockStream) Send(b data.Block) error {
	if s.closed {
		return errors.ClosedError{Name: "BlockStream"}
	}
	buf := make([]byte, len(b.Data))
	copy(buf, b.Data)
	return s.to.Deliver(s.channelID, s.from, data.Block{Data: buf, NumItems: b.NumItems})
}

func (s *mockStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.to.CloseInbound(s.channelID, s.from)
}
