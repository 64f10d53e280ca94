package worker

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderedLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *orderedLog) add(step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

func (l *orderedLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

type fakeWorker struct {
	name string
	log  *orderedLog
}

func (w *fakeWorker) Start() { w.log.add("start " + w.name) }
func (w *fakeWorker) Stop()  { w.log.add("stop " + w.name) }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestManager_StopsWorkersBeforeClosingResources(t *testing.T) {
	log := &orderedLog{}
	m := NewManager()
	m.AddWorkers(&fakeWorker{name: "payout", log: log})
	m.AddResource("kvstore", closerFunc(func() error {
		log.add("close kvstore")
		return nil
	}))
	m.AddCloseFunc("nats", func() { log.add("close nats") })

	m.Start()
	require.NoError(t, m.Stop())

	assert.Equal(t, []string{"start payout", "stop payout", "close kvstore", "close nats"}, log.all())
}

func TestManager_StopCollectsCloseErrors(t *testing.T) {
	boom := errors.New("boom")
	closed := false

	m := NewManager()
	m.AddResource("redis", closerFunc(func() error { return boom }))
	m.AddResource("kvstore", closerFunc(func() error {
		closed = true
		return nil
	}))

	err := m.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close redis: boom")
	assert.True(t, closed, "a failing resource must not keep the rest open")
}

func TestManager_IgnoresNilResource(t *testing.T) {
	m := NewManager()
	m.AddResource("none", nil)
	assert.Empty(t, m.resources)
	assert.NoError(t, m.Stop())
}
