package utils

import (
	"github.com/bwmarrin/discordgo"
)

// SendError sends an ephemeral error message
func SendError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       EmojiCross + " Error",
					Description: message,
					Color:       ColorRed,
				},
			},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}
