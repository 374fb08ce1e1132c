package commands

import (
	"github.com/bwmarrin/discordgo"
)

var Commands = []*discordgo.ApplicationCommand{
	Invites,
	MyInvites,
	Affiliate,
	Ping,
	Stats,
}
