package gameside

import (
	"strings"
	"testing"
)

type recordingSink struct {
	chats  []string
	joins  []string
	leaves []string
	ok     bool
}

func (s *recordingSink) SendChat(player, content string) bool {
	s.chats = append(s.chats, player+"|"+content)
	return s.ok
}
func (s *recordingSink) SendJoin(player string) bool {
	s.joins = append(s.joins, player)
	return s.ok
}
func (s *recordingSink) SendLeave(player string) bool {
	s.leaves = append(s.leaves, player)
	return s.ok
}

func TestSanitizeChat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markdown escaped", "hi *there* _you_", `hi \*there\* \_you\_`},
		{"style codes stripped", "§ared§r text", "red text"},
		{"tilde and backtick", "~a~ `b`", "\\~a\\~ \\`b\\`"},
		{"plain passes through", "hello world", "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeChat(tt.in); got != tt.want {
				t.Errorf("SanitizeChat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeChatCapsLength(t *testing.T) {
	got := SanitizeChat(strings.Repeat("a", 4000))
	if len(got) != chatCap {
		t.Errorf("len = %d, want %d", len(got), chatCap)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("capped text should end with ellipsis marker")
	}
}

func TestForwarder(t *testing.T) {
	sink := &recordingSink{ok: true}
	f := &Forwarder{Sink: sink}

	f.PlayerChat("Steve", "hello *world*")
	f.PlayerJoined("Steve")
	f.PlayerLeft("Steve")

	if len(sink.chats) != 1 || sink.chats[0] != `Steve|hello \*world\*` {
		t.Errorf("chats = %v", sink.chats)
	}
	if len(sink.joins) != 1 || len(sink.leaves) != 1 {
		t.Errorf("joins = %v leaves = %v", sink.joins, sink.leaves)
	}
}

func TestForwarderDroppedSendDoesNotPanic(t *testing.T) {
	f := &Forwarder{Sink: &recordingSink{ok: false}}
	f.PlayerChat("Steve", "hi")
	f.PlayerJoined("Steve")

	var nilSink *Forwarder = &Forwarder{}
	nilSink.PlayerChat("Steve", "hi")
}
