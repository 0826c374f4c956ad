// Package supabase is a thin REST gateway to the shared datastore. It covers
// three tables: the append-only bridge_events log, pending_link_codes, and
// account_links. It holds no business logic; every method is one authenticated
// round trip that returns parsed data or a *RemoteError.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tekkabyte/minelink/telemetry"
)

const maxErrorBody = 1500

// RemoteError is any non-2xx response from the datastore.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("supabase %s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// IsConflict reports whether err is a uniqueness violation (HTTP 409).
func IsConflict(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == http.StatusConflict
}

// EventRow is one raw row of the bridge_events table. Payload is decoded by
// the bridge package, not here.
type EventRow struct {
	ID        int64           `json:"id"`
	ServerID  string          `json:"server_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PendingCode is one row of pending_link_codes.
type PendingCode struct {
	Code              string `json:"code"`
	MinecraftUUID     string `json:"minecraft_uuid"`
	MinecraftUsername string `json:"minecraft_username"`
	ExpiresAt         string `json:"expires_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
// An unparseable expiry counts as expired.
func (p PendingCode) Expired(now time.Time) bool {
	exp, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// Client performs authenticated CRUD against the datastore REST API.
type Client struct {
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
}

// NewClient returns a Client with a bounded-timeout HTTP client so a stalled
// remote never hangs a worker.
func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// InsertEvent appends one typed event row for serverID.
func (c *Client) InsertEvent(ctx context.Context, serverID, typ string, payload any) error {
	row := map[string]any{"server_id": serverID, "type": typ, "payload": payload}
	err := c.post(ctx, "/rest/v1/bridge_events", []any{row}, nil)
	if err == nil {
		telemetry.CountEvent(telemetry.EventsProduced, typ)
	}
	return err
}

// FetchEvents returns events for serverID in created_at order. A non-zero
// since narrows the fetch to rows created strictly after it.
func (c *Client) FetchEvents(ctx context.Context, serverID string, since time.Time) ([]EventRow, error) {
	q := url.Values{}
	q.Set("server_id", "eq."+serverID)
	q.Set("order", "created_at.asc")
	q.Set("select", "*")
	if !since.IsZero() {
		q.Set("created_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}
	var rows []EventRow
	if err := c.get(ctx, "/rest/v1/bridge_events?"+q.Encode(), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchPendingCode looks up a pending link code. Not-found returns (nil, nil).
func (c *Client) FetchPendingCode(ctx context.Context, code string) (*PendingCode, error) {
	q := url.Values{}
	q.Set("code", "eq."+code)
	q.Set("select", "code,minecraft_uuid,minecraft_username,expires_at")
	q.Set("limit", "1")
	var rows []PendingCode
	if err := c.get(ctx, "/rest/v1/pending_link_codes?"+q.Encode(), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreatePendingCode registers a fresh code. A duplicate code surfaces as a
// *RemoteError with status 409; see IsConflict.
func (c *Client) CreatePendingCode(ctx context.Context, code, minecraftUUID, minecraftUsername string, expiresAt time.Time) error {
	row := map[string]any{
		"code":               code,
		"minecraft_uuid":     minecraftUUID,
		"minecraft_username": minecraftUsername,
		"expires_at":         expiresAt.UTC().Format(time.RFC3339),
	}
	return c.post(ctx, "/rest/v1/pending_link_codes", []any{row}, nil)
}

// DeletePendingCode removes a code row. Deleting an absent code is not an error.
func (c *Client) DeletePendingCode(ctx context.Context, code string) error {
	return c.delete(ctx, "/rest/v1/pending_link_codes?code=eq."+url.QueryEscape(code))
}

// MinecraftLinked reports whether an account link exists for the uuid.
func (c *Client) MinecraftLinked(ctx context.Context, minecraftUUID string) (bool, error) {
	q := url.Values{}
	q.Set("minecraft_uuid", "eq."+minecraftUUID)
	q.Set("select", "minecraft_uuid")
	q.Set("limit", "1")
	var rows []json.RawMessage
	if err := c.get(ctx, "/rest/v1/account_links?"+q.Encode(), &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// DiscordLinked reports whether an account link exists for the Discord id.
func (c *Client) DiscordLinked(ctx context.Context, discordID string) (bool, error) {
	q := url.Values{}
	q.Set("discord_id", "eq."+discordID)
	q.Set("select", "discord_id")
	q.Set("limit", "1")
	var rows []json.RawMessage
	if err := c.get(ctx, "/rest/v1/account_links?"+q.Encode(), &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// LinkedDiscordID returns the Discord id linked to a uuid, or "" when unlinked.
func (c *Client) LinkedDiscordID(ctx context.Context, minecraftUUID string) (string, error) {
	q := url.Values{}
	q.Set("minecraft_uuid", "eq."+minecraftUUID)
	q.Set("select", "discord_id")
	q.Set("limit", "1")
	var rows []struct {
		DiscordID string `json:"discord_id"`
	}
	if err := c.get(ctx, "/rest/v1/account_links?"+q.Encode(), &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return strings.TrimSpace(rows[0].DiscordID), nil
}

// UpsertLink writes an account link keyed on minecraft_uuid, last write wins.
func (c *Client) UpsertLink(ctx context.Context, minecraftUUID, minecraftUsername, discordID, discordTag string) error {
	row := map[string]any{
		"minecraft_uuid":     minecraftUUID,
		"minecraft_username": minecraftUsername,
		"discord_id":         discordID,
		"discord_tag":        discordTag,
		"linked_at":          time.Now().UTC().Format(time.RFC3339),
	}
	return c.postMerge(ctx, "/rest/v1/account_links?on_conflict=minecraft_uuid", []any{row})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req, "GET "+route(path))
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	return c.postWith(ctx, path, payload, out, "return=minimal")
}

func (c *Client) postMerge(ctx context.Context, path string, payload any) error {
	return c.postWith(ctx, path, payload, nil, "resolution=merge-duplicates,return=minimal")
}

func (c *Client) postWith(ctx context.Context, path string, payload any, out any, prefer string) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)
	body, err := c.do(req, "POST "+route(path))
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "DELETE "+route(path))
	return err
}

// do executes one round trip with auth headers, returning the body or a
// *RemoteError for any non-2xx status.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("Accept", "application/json")

	ctx, span := telemetry.StartSpan(req.Context(), "supabase", op,
		attribute.String("db.operation", op))
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.http().Do(req)
	telemetry.ObserveSince(telemetry.GatewayDuration, start)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("supabase %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := string(body)
		if len(b) > maxErrorBody {
			b = b[:maxErrorBody] + "..."
		}
		rerr := &RemoteError{Op: op, Status: resp.StatusCode, Body: b}
		telemetry.RecordError(span, rerr)
		return nil, rerr
	}
	return body, nil
}

// route strips the query string so span names stay low-cardinality.
func route(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
