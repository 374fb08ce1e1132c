package commands

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Ping = &discordgo.ApplicationCommand{
	Name:        "ping",
	Description: "Check bot latency",
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func PingCmd(ctx framework.Context, interactionID string, db, rdb Pinger) {
	// Interaction IDs are snowflakes.
	id, _ := strconv.ParseInt(interactionID, 10, 64)
	timestamp := (id >> 22) + 1420070400000
	botLatency := time.Since(time.UnixMilli(timestamp))

	apiLatency := ctx.GetSession().HeartbeatLatency()

	var dbLatency, redisLatency time.Duration
	var errDB, errRedis error
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		errDB = db.Ping(ctx.Context())
		dbLatency = time.Since(start)
	}()

	go func() {
		defer wg.Done()
		start := time.Now()
		errRedis = rdb.Ping(ctx.Context())
		redisLatency = time.Since(start)
	}()

	wg.Wait()

	dbStatus := fmt.Sprintf("`%dms`", dbLatency.Milliseconds())
	if errDB != nil {
		dbStatus = "`❌ Error`"
	}

	redisStatus := fmt.Sprintf("`%dms`", redisLatency.Milliseconds())
	if errRedis != nil {
		redisStatus = "`❌ Error`"
	}

	embed := &discordgo.MessageEmbed{
		Title: utils.EmojiTick + " Pong!",
		Color: utils.ColorDark,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Bot Latency",
				Value:  fmt.Sprintf("`%dms`", botLatency.Milliseconds()),
				Inline: true,
			},
			{
				Name:   "API Latency",
				Value:  fmt.Sprintf("`%dms`", apiLatency.Milliseconds()),
				Inline: true,
			},
			{
				Name:   "Database",
				Value:  dbStatus,
				Inline: true,
			},
			{
				Name:   "Redis",
				Value:  redisStatus,
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s", ctx.GetAuthor().Username),
			IconURL: ctx.GetAuthor().AvatarURL(""),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	ctx.ReplyEmbed(embed)
}
