package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	deleted []string
	failOn  map[string]bool
	nextID  int
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[channelID] {
		return nil, errors.New("missing access")
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{channelID, content})
	return &discordgo.Message{ID: fmt.Sprintf("m%d", f.nextID), ChannelID: channelID}, nil
}

func (f *fakeSender) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return nil
}

func newTestNotifier(sender *fakeSender, announce string, welcome ...string) (*ChannelNotifier, *[]time.Duration) {
	n := NewChannelNotifier(sender, announce, welcome, time.Second, zap.NewNop())
	var delays []time.Duration
	n.afterFunc = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}
	return n, &delays
}

func TestNotifier_Announce(t *testing.T) {
	sender := &fakeSender{}
	n, _ := newTestNotifier(sender, "announce")

	assert.True(t, n.Announce(context.Background(), "g", "hello"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, sentMessage{"announce", "hello"}, sender.sent[0])
}

func TestNotifier_AnnounceFailures(t *testing.T) {
	sender := &fakeSender{failOn: map[string]bool{"announce": true}}
	n, _ := newTestNotifier(sender, "announce")
	assert.False(t, n.Announce(context.Background(), "g", "hello"))

	unset, _ := newTestNotifier(&fakeSender{}, "")
	assert.False(t, unset.Announce(context.Background(), "g", "hello"))
}

func TestNotifier_WelcomePingsAndDeletes(t *testing.T) {
	sender := &fakeSender{}
	n, delays := newTestNotifier(sender, "announce", "w1", "w2")

	assert.True(t, n.Welcome(context.Background(), "g", "member"))
	assert.Equal(t, []sentMessage{{"w1", "<@member>"}, {"w2", "<@member>"}}, sender.sent)
	assert.Equal(t, []string{"w1/m1", "w2/m2"}, sender.deleted)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *delays)
}

func TestNotifier_WelcomePartialFailure(t *testing.T) {
	sender := &fakeSender{failOn: map[string]bool{"w1": true}}
	n, _ := newTestNotifier(sender, "announce", "w1", "w2")

	assert.False(t, n.Welcome(context.Background(), "g", "member"))
	assert.Equal(t, []sentMessage{{"w2", "<@member>"}}, sender.sent)
	assert.Equal(t, []string{"w2/m1"}, sender.deleted)
}

func TestNotifier_WelcomeDeletesAfterDelay(t *testing.T) {
	sender := &fakeSender{}
	n := NewChannelNotifier(sender, "", []string{"w1"}, 10*time.Millisecond, zap.NewNop())

	require.True(t, n.Welcome(context.Background(), "g", "member"))
	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.deleted) == 1
	}, time.Second, 5*time.Millisecond)
}
