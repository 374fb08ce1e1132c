package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProfileFetcher loads profile-only fields (bio, banner, decoration, badges).
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
}

// Signal is one weighted check that contributed to a score.
type Signal struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// Breakdown is the full result of scoring one identity.
type Breakdown struct {
	Signals []Signal
	Total   int
	// AgeDays is the account age used for the age bracket.
	AgeDays int
	// ShortCircuited is set when the account was younger than a week.
	ShortCircuited bool
	ProfileErr     error
}

func (b *Breakdown) add(name string, weight int) {
	b.Signals = append(b.Signals, Signal{Name: name, Weight: weight})
	b.Total += weight
}

// IsAlt reports whether the score marks the identity as an alt.
func (b *Breakdown) IsAlt() bool {
	return b.Total <= 0
}

// Scorer computes the heuristic legitimacy score of a newly joined member.
type Scorer struct {
	profiles ProfileFetcher
	now      func() time.Time
	logger   *zap.Logger
}

func NewScorer(profiles ProfileFetcher, logger *zap.Logger) *Scorer {
	return &Scorer{
		profiles: profiles,
		now:      time.Now,
		logger:   logger.Named("scorer"),
	}
}

// WithClock replaces the clock used for account age. Intended for tests.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score returns the integer score; a score of zero or below means alt.
func (s *Scorer) Score(ctx context.Context, id Identity) int {
	return s.Explain(ctx, id).Total
}

// Explain scores the identity and records every signal that fired.
func (s *Scorer) Explain(ctx context.Context, id Identity) *Breakdown {
	b := &Breakdown{}

	var profile *Profile
	if s.profiles != nil {
		p, err := s.profiles.FetchProfile(ctx, id.ID)
		if err != nil {
			b.ProfileErr = err
			s.logger.Debug("Profile fetch failed, skipping profile signals",
				zap.String("user_id", id.ID), zap.Error(err))
		} else {
			profile = p
		}
	}

	displayName := id.DisplayName()

	if id.Boosting {
		b.add("boosting", 15)
	}

	if id.HasAvatar {
		b.add("avatar", 2)
	} else {
		b.add("no_avatar", -3)
	}

	if profile != nil && !profile.Partial {
		bio := profile.Bio
		switch {
		case len([]rune(bio)) > 5:
			b.add("bio", 2)
		case bio != "":
			b.add("short_bio", 1)
		default:
			b.add("no_bio", -1)
		}
		if hasURL(bio) {
			b.add("bio_url", 1)
		}
		if hasEmphasis(bio) {
			b.add("bio_markdown", 2)
		}
		if hasPronouns(bio, displayName) {
			b.add("pronouns", 2)
		} else {
			b.add("no_pronouns", -1)
		}
	} else if hasPronouns(displayName) {
		b.add("pronouns", 2)
	}

	if countDigits(id.Username) > 5 {
		b.add("digit_username", -1)
	}
	if isCleanUsername(id.Username) {
		b.add("clean_username", 2)
	}

	if containsBang(displayName) {
		b.add("display_name_bang", 1)
	}

	bio := ""
	if profile != nil {
		bio = profile.Bio
	}
	if hasDecorativeGlyph(displayName, bio) {
		b.add("decorative_glyphs", 1)
	}

	s.presenceSignals(b, id.Presence)

	if id.PublicFlags&(FlagHouseBravery|FlagHouseBrilliance|FlagHouseBalance) != 0 ||
		(profile != nil && (profile.HasBadge("hypesquad_house_1") ||
			profile.HasBadge("hypesquad_house_2") ||
			profile.HasBadge("hypesquad_house_3"))) {
		b.add("house_badge", 2)
	}
	if id.PublicFlags&FlagActiveDeveloper != 0 ||
		(profile != nil && profile.HasBadge("active_developer")) {
		b.add("active_developer", 10)
	}

	if profile != nil {
		if profile.HasBanner {
			b.add("banner", 10)
		}
		if profile.HasDecoration {
			b.add("avatar_decoration", 10)
		}
	}

	s.ageSignal(b, id.CreatedAt)
	return b
}

func (s *Scorer) presenceSignals(b *Breakdown, p *Presence) {
	if p == nil || p.Status == "" || p.Status == StatusOffline {
		return
	}

	hasCustom := false
	hasActivity := false
	platforms := make(map[string]struct{})
	for _, a := range p.Activities {
		switch a.Type {
		case ActivityCustom:
			hasCustom = true
			continue
		case ActivityPlaying, ActivityStreaming, ActivityListening, ActivityWatching:
			hasActivity = true
		}
		key := a.ApplicationID
		if key == "" {
			key = a.Name
		}
		if key != "" {
			platforms[key] = struct{}{}
		}
	}

	if hasCustom {
		b.add("custom_status", 1)
	}
	if hasActivity {
		b.add("activity", 3)
	}
	if n := len(platforms); n > 0 {
		b.add("connected_platforms", 2+(n-1))
	}

	switch p.Status {
	case StatusIdle, StatusDND:
		b.add("idle_or_dnd", 2)
	case StatusOnline:
		if !hasCustom {
			b.add("online_no_status", -1)
		}
	}
}

// ageSignal applies the account age bracket. Accounts younger than a week
// keep the points accumulated so far.
func (s *Scorer) ageSignal(b *Breakdown, createdAt time.Time) {
	if createdAt.IsZero() {
		return
	}
	days := int(s.now().Sub(createdAt).Hours() / 24)
	b.AgeDays = days

	switch {
	case days < 7:
		b.ShortCircuited = true
		return
	case days < 30:
		b.add("age_under_30d", -4)
	case days < 90:
		b.add("age_under_90d", -2)
	case days < 150:
		b.add("age_under_150d", -1)
	case days < 180:
	case days < 365:
		b.add("age_under_1y", 2)
	case days < 730:
		b.add("age_1y", 3)
	default:
		b.add("age_2y", 4)
	}
}

func containsBang(s string) bool {
	for _, r := range s {
		if r == '!' {
			return true
		}
	}
	return false
}
