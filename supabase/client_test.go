package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key")
	return c
}

func checkAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if r.Header.Get("apikey") != "test-key" {
		t.Errorf("missing or wrong apikey header")
	}
	if r.Header.Get("Authorization") != "Bearer test-key" {
		t.Errorf("missing or wrong Authorization header")
	}
}

func TestFetchPendingCode(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		statusCode int
		wantNil    bool
		wantErr    bool
	}{
		{
			name:       "found",
			response:   `[{"code":"ABC123","minecraft_uuid":"u1","minecraft_username":"Steve","expires_at":"2030-01-01T00:00:00Z"}]`,
			statusCode: http.StatusOK,
		},
		{
			name:       "not found returns nil without error",
			response:   `[]`,
			statusCode: http.StatusOK,
			wantNil:    true,
		},
		{
			name:       "non-2xx surfaces RemoteError",
			response:   `{"message":"permission denied"}`,
			statusCode: http.StatusForbidden,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				checkAuthHeaders(t, r)
				if r.URL.Path != "/rest/v1/pending_link_codes" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("code"); got != "eq.ABC123" {
					t.Errorf("code filter = %q, want eq.ABC123", got)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.response))
			})

			pc, err := c.FetchPendingCode(context.Background(), "ABC123")
			if tt.wantErr {
				var re *RemoteError
				if !errors.As(err, &re) {
					t.Fatalf("expected RemoteError, got %v", err)
				}
				if re.Status != tt.statusCode {
					t.Errorf("status = %d, want %d", re.Status, tt.statusCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if pc != nil {
					t.Fatalf("expected nil, got %+v", pc)
				}
				return
			}
			if pc == nil || pc.MinecraftUsername != "Steve" {
				t.Fatalf("unexpected code row: %+v", pc)
			}
		})
	}
}

func TestPendingCodeExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt string
		want      bool
	}{
		{"future", "2026-01-01T12:05:00Z", false},
		{"past", "2026-01-01T11:55:00Z", true},
		{"exactly now counts as expired", "2026-01-01T12:00:00Z", true},
		{"garbage counts as expired", "not-a-time", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := PendingCode{ExpiresAt: tt.expiresAt}
			if got := pc.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInsertEventBody(t *testing.T) {
	var got []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		checkAuthHeaders(t, r)
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/bridge_events" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Prefer") != "return=minimal" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	payload := map[string]any{"author": "alice", "content": "hi"}
	if err := c.InsertEvent(context.Background(), "smp-1", "chat", payload); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("insert body should be an array of one row, got %d", len(got))
	}
	if got[0]["server_id"] != "smp-1" || got[0]["type"] != "chat" {
		t.Errorf("row = %+v", got[0])
	}
}

func TestFetchEventsSinceFilter(t *testing.T) {
	since := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("server_id") != "eq.smp-1" {
			t.Errorf("server_id filter = %q", q.Get("server_id"))
		}
		if q.Get("order") != "created_at.asc" {
			t.Errorf("order = %q", q.Get("order"))
		}
		if !strings.HasPrefix(q.Get("created_at"), "gt.2026-02-03T04:05:06") {
			t.Errorf("created_at filter = %q", q.Get("created_at"))
		}
		_, _ = w.Write([]byte(`[{"id":7,"server_id":"smp-1","type":"chat","payload":{"author":"a","content":"b"},"created_at":"2026-02-03T04:05:07Z"}]`))
	})

	rows, err := c.FetchEvents(context.Background(), "smp-1", since)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 7 || rows[0].Type != "chat" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestFetchEventsNoSinceOmitsFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("created_at") {
			t.Errorf("created_at filter should be absent for zero since")
		}
		_, _ = w.Write([]byte(`[]`))
	})
	rows, err := c.FetchEvents(context.Background(), "smp-1", time.Time{})
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestUpsertLinkConflictTarget(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("on_conflict"); got != "minecraft_uuid" {
			t.Errorf("on_conflict = %q", got)
		}
		if !strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		w.WriteHeader(http.StatusCreated)
	})
	if err := c.UpsertLink(context.Background(), "u1", "Steve", "123", "steve#0"); err != nil {
		t.Fatalf("UpsertLink: %v", err)
	}
}

func TestIsConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505"}`))
	})
	err := c.CreatePendingCode(context.Background(), "ABC123", "u1", "Steve", time.Now().Add(5*time.Minute))
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if IsConflict(errors.New("plain")) {
		t.Error("plain error misclassified as conflict")
	}
}

func TestLinkedDiscordID(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"linked", `[{"discord_id":" 123456789012345678 "}]`, "123456789012345678"},
		{"unlinked", `[]`, ""},
		{"null id", `[{"discord_id":""}]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.response))
			})
			got, err := c.LinkedDiscordID(context.Background(), "u1")
			if err != nil {
				t.Fatalf("LinkedDiscordID: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
