package commands

import (
	"fmt"
	"runtime"
	"time"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Stats = &discordgo.ApplicationCommand{
	Name:        "stats",
	Description: "Show bot statistics",
}

// RuntimeStats is what the bot exposes about its own activity.
type RuntimeStats struct {
	StartTime     time.Time
	Guilds        int
	EventsHandled uint64
	RESTCalls     uint64
	RESTLatency   time.Duration
	PendingWrites int

	// Sliding-window counts for the guild the command ran in.
	JoinsLastMinute int
	AltsLastHour    int

	ProfileL1HitRate float64
	ProfileL2HitRate float64
}

func StatsCmd(ctx framework.Context, st RuntimeStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	joins := fmt.Sprintf("**Last Minute:** %d\n**Alts Last Hour:** %d\n**Profile Cache Hits:** %.0f%% memory, %.0f%% Redis",
		st.JoinsLastMinute, st.AltsLastHour, st.ProfileL1HitRate*100, st.ProfileL2HitRate*100)

	embed := &discordgo.MessageEmbed{
		Title: "Bot Statistics",
		Color: utils.ColorDark,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Bot Info",
				Value:  fmt.Sprintf("**Uptime:** %s\n**Guilds:** %d\n**Goroutines:** %d\n**Go Version:** %s", utils.FormatUptime(time.Since(st.StartTime)), st.Guilds, runtime.NumGoroutine(), runtime.Version()),
				Inline: false,
			},
			{
				Name:   "Activity",
				Value:  fmt.Sprintf("**Events:** %d\n**REST Calls:** %d\n**Last REST Latency:** %dms\n**Pending Ledger Writes:** %d", st.EventsHandled, st.RESTCalls, st.RESTLatency.Milliseconds(), st.PendingWrites),
				Inline: false,
			},
			{
				Name:   "Joins",
				Value:  joins,
				Inline: false,
			},
			{
				Name:   "Memory",
				Value:  fmt.Sprintf("**Alloc:** %v MB\n**Sys:** %v MB\n**NumGC:** %v", bToMb(m.Alloc), bToMb(m.Sys), m.NumGC),
				Inline: false,
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

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
