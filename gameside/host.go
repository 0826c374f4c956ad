package gameside

import (
	"context"
	"log/slog"
	"sync"
)

// LogHost is a bridge.Host for deployments running linkd standalone, without
// an embedded plugin host. Broadcasts go to the log; the world thread is
// modeled as a single goroutine draining Schedule so thread-affinity
// semantics match a real host.
type LogHost struct {
	mu      sync.RWMutex
	roster  []string
	tasks   chan func()
	started sync.Once
}

// NewLogHost returns a LogHost with a bounded task queue.
func NewLogHost() *LogHost {
	return &LogHost{tasks: make(chan func(), 64)}
}

// Run drains scheduled tasks until ctx is cancelled. Call exactly once.
func (h *LogHost) Run(ctx context.Context) {
	h.started.Do(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-h.tasks:
				fn()
			}
		}
	})
}

// Broadcast writes the line to the log in place of a world broadcast.
func (h *LogHost) Broadcast(line string) {
	slog.Info("broadcast", slog.String("line", line))
}

// OnlinePlayers returns the configured roster snapshot.
func (h *LogHost) OnlinePlayers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.roster...)
}

// SetRoster replaces the roster snapshot (host-binding hook).
func (h *LogHost) SetRoster(names []string) {
	h.mu.Lock()
	h.roster = append([]string(nil), names...)
	h.mu.Unlock()
}

// RunConsoleCommand logs the command in place of console dispatch.
func (h *LogHost) RunConsoleCommand(cmd string) error {
	slog.Info("console command", slog.String("cmd", cmd))
	return nil
}

// Schedule queues fn onto the world goroutine. A full queue drops the task
// rather than blocking a poller tick.
func (h *LogHost) Schedule(fn func()) {
	select {
	case h.tasks <- fn:
	default:
		slog.Warn("host task queue full, dropping scheduled work")
	}
}
