package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type captured struct {
	Content         string `json:"content"`
	AllowedMentions struct {
		Parse []string `json:"parse"`
		Users []string `json:"users"`
		Roles []string `json:"roles"`
	} `json:"allowed_mentions"`
	Embeds []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Fields      []struct {
			Name   string `json:"name"`
			Value  string `json:"value"`
			Inline bool   `json:"inline"`
		} `json:"fields"`
	} `json:"embeds"`
	ThreadName string `json:"thread_name"`
}

func newCapturingClient(t *testing.T, status int) (*Client, *captured, *atomic.Int64) {
	t.Helper()
	var last captured
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, ""), &last, &hits
}

func TestScrubMentions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"everyone neutralized", "hi @everyone", "hi @\u200beveryone"},
		{"here neutralized", "@here now", "@\u200bhere now"},
		{"raw role mention bracketed", "ping <@&123456789012345678>", "ping [role]"},
		{"raw user mention bracketed", "hi <@123456789012345678> and <@!42424242424242424>", "hi [user] and [user]"},
		{"clean text untouched", "plain message", "plain message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScrubMentions(tt.in); got != tt.want {
				t.Errorf("ScrubMentions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeSnowflake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid id", "123456789012345678", "123456789012345678"},
		{"strips decoration", "<@&123456789012345678>", "123456789012345678"},
		{"too short rejected", "12345", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSnowflake(tt.in); got != tt.want {
				t.Errorf("NormalizeSnowflake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSendChatScrubsAndDisallowsMentions(t *testing.T) {
	c, last, _ := newCapturingClient(t, http.StatusNoContent)
	if !c.SendChat("steve", "hello @everyone <@&123456789012345678>") {
		t.Fatal("send should succeed")
	}
	if strings.Contains(last.Content, "@everyone") {
		t.Errorf("content not scrubbed: %q", last.Content)
	}
	if !strings.Contains(last.Content, "[role]") {
		t.Errorf("raw role mention survived: %q", last.Content)
	}
	if last.AllowedMentions.Parse == nil || len(last.AllowedMentions.Parse) != 0 {
		t.Errorf("allowed_mentions.parse = %v, want empty array", last.AllowedMentions.Parse)
	}
	if len(last.AllowedMentions.Users) != 0 || len(last.AllowedMentions.Roles) != 0 {
		t.Errorf("chat messages must not allow-list mentions: %+v", last.AllowedMentions)
	}
}

func TestSendChatTruncates(t *testing.T) {
	c, last, _ := newCapturingClient(t, http.StatusNoContent)
	c.SendChat("steve", strings.Repeat("a", 3000))
	if len(last.Content) != contentLimit {
		t.Errorf("content length = %d, want %d", len(last.Content), contentLimit)
	}
	if !strings.HasSuffix(last.Content, "...") {
		t.Errorf("truncated content missing ellipsis marker")
	}
}

func TestSendReportAllowListsValidatedIDs(t *testing.T) {
	c, last, _ := newCapturingClient(t, http.StatusOK)
	ok := c.SendReport("111111111111111111", "steve", "uuid-1", "222222222222222222", "griefer", "stole diamonds")
	if !ok {
		t.Fatal("send should succeed")
	}
	if !strings.Contains(last.Content, "<@&111111111111111111>") {
		t.Errorf("staff role mention missing: %q", last.Content)
	}
	if !strings.Contains(last.Content, "<@222222222222222222>") {
		t.Errorf("reporter mention missing: %q", last.Content)
	}
	if len(last.AllowedMentions.Roles) != 1 || last.AllowedMentions.Roles[0] != "111111111111111111" {
		t.Errorf("roles allow-list = %v", last.AllowedMentions.Roles)
	}
	if len(last.AllowedMentions.Users) != 1 || last.AllowedMentions.Users[0] != "222222222222222222" {
		t.Errorf("users allow-list = %v", last.AllowedMentions.Users)
	}
	if len(last.Embeds) != 1 || len(last.Embeds[0].Fields) != 3 {
		t.Fatalf("embeds = %+v", last.Embeds)
	}
	if last.ThreadName != "Report: griefer" {
		t.Errorf("thread_name = %q", last.ThreadName)
	}
}

func TestSendReportInvalidStaffRoleDropped(t *testing.T) {
	c, last, _ := newCapturingClient(t, http.StatusOK)
	c.SendReport("123", "steve", "uuid-1", "222222222222222222", "griefer", "")
	if strings.Contains(last.Content, "<@&") {
		t.Errorf("short role id must not be mentioned: %q", last.Content)
	}
	if len(last.AllowedMentions.Roles) != 0 {
		t.Errorf("roles allow-list = %v, want empty", last.AllowedMentions.Roles)
	}
	if last.Embeds[0].Fields[2].Value != "No reason provided." {
		t.Errorf("reason = %q", last.Embeds[0].Fields[2].Value)
	}
}

func TestThreadIDOverride(t *testing.T) {
	var gotThread string
	var gotThreadName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotThread = r.URL.Query().Get("thread_id")
		var c captured
		_ = json.NewDecoder(r.Body).Decode(&c)
		gotThreadName = c.ThreadName
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "987654321")
	c.SendReport("", "steve", "uuid-1", "222222222222222222", "griefer", "r")
	if gotThread != "987654321" {
		t.Errorf("thread_id = %q", gotThread)
	}
	if gotThreadName != "" {
		t.Errorf("thread_name should be omitted with a thread override, got %q", gotThreadName)
	}
}

func TestCooldownAfter429(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if c.SendChat("steve", "one") {
		t.Fatal("429 send should report failure")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}

	// Within the cool-down: fail fast, no network call.
	if c.SendChat("steve", "two") {
		t.Fatal("send during cool-down should fail")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d after cool-down send, want still 1", hits.Load())
	}

	// After the cool-down the client tries the network again.
	c.Now = func() time.Time { return time.Now().Add(6 * time.Second) }
	c.SendChat("steve", "three")
	if hits.Load() != 2 {
		t.Fatalf("hits = %d after cool-down expiry, want 2", hits.Load())
	}
}

func TestNon2xxReturnsFalse(t *testing.T) {
	c, _, hits := newCapturingClient(t, http.StatusBadRequest)
	if c.SendJoin("steve") {
		t.Fatal("non-2xx should report failure")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d", hits.Load())
	}
	// A plain failure does not start a cool-down.
	c.SendLeave("steve")
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2 (no cool-down after 400)", hits.Load())
	}
}
