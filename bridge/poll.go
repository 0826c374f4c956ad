package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tekkabyte/minelink/supabase"
	"github.com/tekkabyte/minelink/telemetry"
)

// Source fetches undelivered events for a server identity. since is the
// consumer's high-water mark; zero means everything visible.
type Source interface {
	Poll(ctx context.Context, since time.Time) ([]supabase.EventRow, error)
}

// PollClient consumes the poll endpoint exposed by the bot deployment.
type PollClient struct {
	URL        string
	ServerID   string
	Secret     string
	HTTPClient *http.Client
}

// NewPollClient returns a PollClient with connect/read bounds so a stalled
// endpoint never wedges a poll tick.
func NewPollClient(pollURL, serverID, secret string) *PollClient {
	return &PollClient{
		URL:        pollURL,
		ServerID:   serverID,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
	}
}

func (p *PollClient) http() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// Poll fetches one batch of events. An empty body decodes to no events.
func (p *PollClient) Poll(ctx context.Context, since time.Time) ([]supabase.EventRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("serverId", p.ServerID)
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Server-Secret", p.Secret)

	resp, err := p.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge poll: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var rows []supabase.EventRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Poller drives consumption on a fixed interval. It tracks a high-water mark
// by created_at so a restart of the remote cannot replay rows it already
// dispatched this process lifetime; duplicate delivery across process
// restarts remains possible and handlers tolerate it.
type Poller struct {
	Source     Source
	Dispatcher *Dispatcher
	Interval   time.Duration

	highWater time.Time
}

// Run polls until ctx is cancelled. Each batch is dispatched in returned
// order on the host's world thread via Schedule; fetch failures are logged
// and the tick is a no-op.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if p.highWater.IsZero() {
		p.highWater = time.Now().UTC()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("bridge polling started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("bridge polling stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	defer telemetry.ObserveSince(telemetry.PollDuration, start)

	rows, err := p.Source.Poll(ctx, p.highWater)
	if err != nil {
		telemetry.Inc(telemetry.PollErrors)
		slog.Warn("bridge poll failed", slog.Any("err", err))
		return
	}
	if len(rows) == 0 {
		return
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		if row.CreatedAt.After(p.highWater) {
			p.highWater = row.CreatedAt
		}
		ev, ok := Decode(row)
		if !ok {
			slog.Debug("unknown bridge event kind", slog.String("type", row.Type))
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return
	}

	// One hop onto the world thread per batch, preserving returned order.
	p.Dispatcher.Host.Schedule(func() {
		for _, ev := range events {
			p.Dispatcher.Dispatch(ev)
		}
	})
}
