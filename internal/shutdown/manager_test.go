package shutdown

import (
	"sync"
	"testing"
	"time"

	"filter-explorer/internal/logger"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

type step struct {
	name  string
	rec   *recorder
	block chan struct{}
}

func (s step) Shutdown() {
	if s.block != nil {
		<-s.block
	}
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	s.rec.order = append(s.rec.order, s.name)
}

func TestShutdownRunsInReverseOrderOnce(t *testing.T) {
	rec := &recorder{}
	m := NewManager(logger.Nop())
	m.Register("client", step{name: "client", rec: rec})
	m.Register("controller", step{name: "controller", rec: rec})

	m.Shutdown()
	m.Shutdown()

	require.Equal(t, []string{"controller", "client"}, rec.order)
	require.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}

func TestShutdownStepTimeout(t *testing.T) {
	rec := &recorder{}
	block := make(chan struct{})
	defer close(block)

	m := NewManager(logger.Nop())
	m.SetStepTimeout(20 * time.Millisecond)
	m.Register("fast", step{name: "fast", rec: rec})
	m.Register("stuck", step{name: "stuck", rec: rec, block: block})

	start := time.Now()
	m.Shutdown()
	require.Less(t, time.Since(start), time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{"fast"}, rec.order)
}
