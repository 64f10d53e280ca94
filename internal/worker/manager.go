package worker

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/common/types"
)

const defaultShutdownTimeout = 30 * time.Second

type namedCloser struct {
	name   string
	closer func() error
}

// Manager starts workers together and stops them before releasing the
// resources they share.
type Manager struct {
	workers   []Worker
	resources []namedCloser
	timeout   time.Duration
}

func NewManager() *Manager {
	return &Manager{timeout: defaultShutdownTimeout}
}

// AddWorkers injects workers into the manager.
func (m *Manager) AddWorkers(workers ...Worker) {
	m.workers = append(m.workers, workers...)
}

// AddResource registers something to close once every worker has stopped.
// Resources are closed in registration order.
func (m *Manager) AddResource(name string, c io.Closer) {
	if c == nil {
		return
	}
	m.resources = append(m.resources, namedCloser{name: name, closer: c.Close})
}

func (m *Manager) AddCloseFunc(name string, fn func()) {
	m.resources = append(m.resources, namedCloser{name: name, closer: func() error { fn(); return nil }})
}

func (m *Manager) Start() {
	for _, w := range m.workers {
		w.Start()
	}
}

// Stop shuts down all workers concurrently with a timeout, then closes
// resources. Close errors are collected, a failing resource does not keep the
// others open.
func (m *Manager) Stop() error {
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range m.workers {
			if w != nil {
				wg.Add(1)
				go func(w Worker) {
					defer wg.Done()
					w.Stop()
				}(w)
			}
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All workers stopped")
	case <-time.After(m.timeout):
		logger.Warn("Worker shutdown timed out, proceeding with resource cleanup",
			"timeout", m.timeout)
	}

	var errs types.MultiError
	for _, r := range m.resources {
		if err := r.closer(); err != nil {
			logger.Error("Failed to close "+r.name, "err", err)
			errs.Add(fmt.Errorf("close %s: %w", r.name, err))
		}
	}
	logger.Info("Manager stopped")
	if errs.IsEmpty() {
		return nil
	}
	return &errs
}
