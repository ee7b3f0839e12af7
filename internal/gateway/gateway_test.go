package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	sent map[string]string
	err  error
}

func (f *fakeMessenger) Start() error { return nil }
func (f *fakeMessenger) Stop() error  { return nil }

func (f *fakeMessenger) Send(chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[chatID] = text
	return nil
}

func TestRouter_Send(t *testing.T) {
	tg, dc := &fakeMessenger{}, &fakeMessenger{}
	r := NewRouter()
	r.Add("telegram", tg)
	r.Add("Discord", dc)
	assert.ElementsMatch(t, []string{"telegram", "discord"}, r.Channels())

	require.NoError(t, r.Send("telegram:42", "hi"))
	assert.Equal(t, "hi", tg.sent["42"])
	require.NoError(t, r.Send("discord:chan-1", "yo"))
	assert.Equal(t, "yo", dc.sent["chan-1"])

	assert.Error(t, r.Send("42", "no prefix"))
	assert.Error(t, r.Send("slack:1", "unknown"))

	dc.err = errors.New("rate limited")
	assert.ErrorContains(t, r.Send("discord:chan-1", "x"), "rate limited")
}

func TestRouter_SenderResolvesLazily(t *testing.T) {
	r := NewRouter()
	sender := r.Sender("telegram")
	assert.Error(t, sender.Send("1", "early"))

	tg := &fakeMessenger{}
	r.Add("telegram", tg)
	require.NoError(t, sender.Send("1", "late"))
	assert.Equal(t, "late", tg.sent["1"])
}

func TestChunks(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunks("short", 10))

	text := strings.Repeat("line of text\n", 10)
	parts := chunks(text, 30)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 30)
		assert.True(t, strings.HasSuffix(p, "\n"), "cut at line break: %q", p)
	}

	long := strings.Repeat("ü", 25)
	parts = chunks(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}

func TestAddressedText(t *testing.T) {
	self := &discordgo.User{ID: "bot"}
	msg := func(guild, content string, mentions ...*discordgo.User) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{GuildID: guild, Content: content, Mentions: mentions}}
	}

	text, ok := addressedText(self, msg("", "  status of task 7 "))
	assert.True(t, ok)
	assert.Equal(t, "status of task 7", text)

	_, ok = addressedText(self, msg("g1", "talking to someone else"))
	assert.False(t, ok)

	text, ok = addressedText(self, msg("g1", "<@bot> sales today?", self))
	assert.True(t, ok)
	assert.Equal(t, "sales today?", text)

	_, ok = addressedText(self, msg("g1", "<@!bot>", self))
	assert.False(t, ok)
}
