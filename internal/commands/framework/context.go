package framework

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type Context interface {
	Context() context.Context
	GetSession() *discordgo.Session
	GetGuildID() string
	GetChannelID() string
	GetAuthor() *discordgo.User
	IsAdmin() bool
	// Subcommand returns the invoked subcommand name, or "" for flat commands.
	Subcommand() string
	StringOption(name string) string
	IntOption(name string) (int64, bool)
	UserOption(name string) string
	Reply(content string) error
	ReplyEphemeral(content string) error
	ReplyEmbed(embed *discordgo.MessageEmbed) error
}

// SlashContext implements Context for Slash Commands
type SlashContext struct {
	ctx         context.Context
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
}

func NewSlashContext(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *SlashContext {
	return &SlashContext{ctx: ctx, Session: s, Interaction: i}
}

func (c *SlashContext) Context() context.Context {
	return c.ctx
}

func (c *SlashContext) GetSession() *discordgo.Session {
	return c.Session
}

func (c *SlashContext) GetGuildID() string {
	return c.Interaction.GuildID
}

func (c *SlashContext) GetChannelID() string {
	return c.Interaction.ChannelID
}

func (c *SlashContext) GetAuthor() *discordgo.User {
	if c.Interaction.Member != nil {
		return c.Interaction.Member.User
	}
	return c.Interaction.User
}

// IsAdmin checks the resolved permissions Discord sends with the interaction.
func (c *SlashContext) IsAdmin() bool {
	m := c.Interaction.Member
	return m != nil && m.Permissions&discordgo.PermissionAdministrator != 0
}

func (c *SlashContext) Subcommand() string {
	opts := c.Interaction.ApplicationCommandData().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name
	}
	return ""
}

// options returns the leaf options, descending into a subcommand if present.
func (c *SlashContext) options() []*discordgo.ApplicationCommandInteractionDataOption {
	opts := c.Interaction.ApplicationCommandData().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}

func (c *SlashContext) option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range c.options() {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (c *SlashContext) StringOption(name string) string {
	if o := c.option(name); o != nil && o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return ""
}

func (c *SlashContext) IntOption(name string) (int64, bool) {
	if o := c.option(name); o != nil && o.Type == discordgo.ApplicationCommandOptionInteger {
		return o.IntValue(), true
	}
	return 0, false
}

// UserOption returns the selected user's ID.
func (c *SlashContext) UserOption(name string) string {
	if o := c.option(name); o != nil && o.Type == discordgo.ApplicationCommandOptionUser {
		return fmt.Sprint(o.Value)
	}
	return ""
}

func (c *SlashContext) Reply(content string) error {
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		},
	})
}

func (c *SlashContext) ReplyEphemeral(content string) error {
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (c *SlashContext) ReplyEmbed(embed *discordgo.MessageEmbed) error {
	return c.Session.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		},
	})
}
