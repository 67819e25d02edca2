package chatfmt

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFormats(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 5, 7, 0, time.Local))
	f := New(clock)

	assert.Equal(t, "[09:05:07] alice : hi\n", f.Chat("alice", "hi"))
	assert.Equal(t, "[09:05:07] [Server] : bob has joined the chat!\n", f.Server("bob has joined the chat!"))
	assert.Equal(t, "[09:05:07] [PM from carol] : psst\n", f.Private("carol", "psst"))

	clock.Advance(time.Hour)
	assert.Equal(t, "[10:05:07] [Server] : x\n", f.Format(KindServer, "ignored", "x"))
	assert.Equal(t, "[10:05:07] [PM from a] : x\n", f.Format(KindPrivate, "a", "x"))
	assert.Equal(t, "[10:05:07] a : x\n", f.Format(KindChat, "a", "x"))
}

func TestNewNilClock(t *testing.T) {
	assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\] u : m\n$`, New(nil).Chat("u", "m"))
}

func TestValidUsername(t *testing.T) {
	cases := map[string]bool{
		"alice":                            true,
		"a_b-c":                            true,
		"  bob  ":                          true,
		"User123":                          true,
		"abc":                              true,
		"abcdefghijklmnopqrst":             true,
		"ab":                               false,
		"a b":                              false,
		"toolongusernamethatexceedstwenty": false,
		"":                                 false,
		"   ":                              false,
		"bad!name":                         false,
		"名字名字":                             false,
	}
	for name, want := range cases {
		assert.Equal(t, want, ValidUsername(name), "username %q", name)
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("  hel\x00lo\x07  "))
	assert.Equal(t, "a\tb\nc", Sanitize("a\tb\nc\x1b"))
	assert.Equal(t, "", Sanitize("\x01\x02 "))
	assert.Equal(t, "[10:00:00] [PM from a] : x", Sanitize("[10:00:00] [PM from a] : x\n"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "chat", KindChat.String())
	assert.Equal(t, "private", KindPrivate.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
