package utils

import (
	"testing"
	"time"

	"discord-invite-tracker/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestInviteStatsEmbed(t *testing.T) {
	v := models.StatsView{Regular: 3, Fake: 2, Bonus: 1, Leaves: 1, LeavesDeduction: 1, Total: 3}

	embed := InviteStatsEmbed("42", v, 0)
	assert.Contains(t, embed.Description, "<@42> has **3** invites")
	assert.Contains(t, embed.Description, "**Fake:** 2")
	assert.Nil(t, embed.Footer)

	embed = InviteStatsEmbed("42", v, 4)
	assert.Equal(t, "Rank #4", embed.Footer.Text)
}

func TestLeaderboardEmbed(t *testing.T) {
	assert.Equal(t, "No invites recorded yet.", LeaderboardEmbed(nil).Description)

	embed := LeaderboardEmbed([]LeaderboardRow{{UserID: "a", Total: 5, Regular: 6, Leaves: 1}, {UserID: "b", Total: 2, Regular: 2}})
	assert.Contains(t, embed.Description, "**1.** <@a> - **5** invites")
	assert.Contains(t, embed.Description, "**2.** <@b>")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "1d 2h 3m 4s", FormatUptime(26*time.Hour+3*time.Minute+4*time.Second))
}
