package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// ChannelNotifier posts join and leave announcements to a fixed channel and
// pings new members in the welcome channels, deleting the ping shortly after.
type ChannelNotifier struct {
	sender          messageSender
	announceChannel string
	welcomeChannels []string
	deleteAfter     time.Duration
	afterFunc       func(time.Duration, func())
	logger          *zap.Logger
}

func NewChannelNotifier(sender messageSender, announceChannel string, welcomeChannels []string, deleteAfter time.Duration, logger *zap.Logger) *ChannelNotifier {
	return &ChannelNotifier{
		sender:          sender,
		announceChannel: announceChannel,
		welcomeChannels: welcomeChannels,
		deleteAfter:     deleteAfter,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		logger: logger.Named("notifier"),
	}
}

// Announce posts content to the announcement channel.
func (n *ChannelNotifier) Announce(ctx context.Context, guildID, content string) bool {
	if n.announceChannel == "" {
		return false
	}
	_, err := n.sender.ChannelMessageSend(n.announceChannel, content, discordgo.WithContext(ctx))
	if err != nil {
		n.logger.Debug("Announcement failed",
			zap.String("guild_id", guildID),
			zap.String("channel_id", n.announceChannel),
			zap.Error(err))
		return false
	}
	return true
}

// Welcome pings the member in every welcome channel. It reports false when any
// channel could not be reached.
func (n *ChannelNotifier) Welcome(ctx context.Context, guildID, memberID string) bool {
	ok := true
	for _, channelID := range n.welcomeChannels {
		msg, err := n.sender.ChannelMessageSend(channelID, fmt.Sprintf("<@%s>", memberID), discordgo.WithContext(ctx))
		if err != nil {
			n.logger.Debug("Welcome ping failed",
				zap.String("guild_id", guildID),
				zap.String("channel_id", channelID),
				zap.Error(err))
			ok = false
			continue
		}
		n.scheduleDelete(channelID, msg.ID)
	}
	return ok
}

func (n *ChannelNotifier) scheduleDelete(channelID, messageID string) {
	n.afterFunc(n.deleteAfter, func() {
		// The triggering event may be long gone, so this runs detached.
		if err := n.sender.ChannelMessageDelete(channelID, messageID); err != nil {
			n.logger.Debug("Failed to delete welcome ping",
				zap.String("channel_id", channelID),
				zap.String("message_id", messageID),
				zap.Error(err))
		}
	})
}
