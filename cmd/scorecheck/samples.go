package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var errNoProfile = errors.New("no profile in sample")

type sampleActivity struct {
	Type          int    `yaml:"type"`
	Name          string `yaml:"name"`
	ApplicationID string `yaml:"application_id"`
	State         string `yaml:"state"`
}

type samplePresence struct {
	Status     string           `yaml:"status"`
	Activities []sampleActivity `yaml:"activities"`
}

type sampleProfile struct {
	Bio           string   `yaml:"bio"`
	HasBanner     bool     `yaml:"has_banner"`
	HasDecoration bool     `yaml:"has_decoration"`
	Badges        []string `yaml:"badges"`
}

// sample is one account description in a fixtures file.
type sample struct {
	ID          string          `yaml:"id"`
	Username    string          `yaml:"username"`
	GlobalName  string          `yaml:"global_name"`
	Nick        string          `yaml:"nick"`
	HasAvatar   bool            `yaml:"has_avatar"`
	CreatedAt   time.Time       `yaml:"created_at"`
	PublicFlags int64           `yaml:"public_flags"`
	Boosting    bool            `yaml:"boosting"`
	Presence    *samplePresence `yaml:"presence"`
	Profile     *sampleProfile  `yaml:"profile"`
}

func loadSamples(r io.Reader) ([]sample, error) {
	var samples []sample
	if err := yaml.NewDecoder(r).Decode(&samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}
	for i, s := range samples {
		if s.ID == "" {
			return nil, fmt.Errorf("sample %d has no id", i)
		}
	}
	return samples, nil
}

func (s sample) identity() scoring.Identity {
	id := scoring.Identity{
		ID:          s.ID,
		Username:    s.Username,
		GlobalName:  s.GlobalName,
		Nick:        s.Nick,
		HasAvatar:   s.HasAvatar,
		CreatedAt:   s.CreatedAt,
		PublicFlags: s.PublicFlags,
		Boosting:    s.Boosting,
	}
	if id.CreatedAt.IsZero() {
		if t, err := discordgo.SnowflakeTimestamp(s.ID); err == nil {
			id.CreatedAt = t
		}
	}
	if s.Presence != nil {
		id.Presence = &scoring.Presence{Status: s.Presence.Status}
		for _, a := range s.Presence.Activities {
			id.Presence.Activities = append(id.Presence.Activities, scoring.Activity{
				Type:          a.Type,
				Name:          a.Name,
				ApplicationID: a.ApplicationID,
				State:         a.State,
			})
		}
	}
	return id
}

// sampleProfiles serves profiles from the fixtures instead of the API.
type sampleProfiles map[string]*scoring.Profile

func newSampleProfiles(samples []sample) sampleProfiles {
	out := make(sampleProfiles, len(samples))
	for _, s := range samples {
		if s.Profile == nil {
			continue
		}
		out[s.ID] = &scoring.Profile{
			Bio:           s.Profile.Bio,
			HasBanner:     s.Profile.HasBanner,
			HasDecoration: s.Profile.HasDecoration,
			Badges:        s.Profile.Badges,
		}
	}
	return out
}

func (p sampleProfiles) FetchProfile(_ context.Context, userID string) (*scoring.Profile, error) {
	if prof, ok := p[userID]; ok {
		return prof, nil
	}
	return nil, errNoProfile
}

type result struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Score   int              `json:"score"`
	Alt     bool             `json:"alt"`
	AgeDays int              `json:"age_days"`
	Signals []scoring.Signal `json:"signals"`
}

func scoreSamples(ctx context.Context, scorer *scoring.Scorer, samples []sample) []result {
	out := make([]result, 0, len(samples))
	for _, s := range samples {
		id := s.identity()
		b := scorer.Explain(ctx, id)
		out = append(out, result{
			ID:      id.ID,
			Name:    id.DisplayName(),
			Score:   b.Total,
			Alt:     b.IsAlt(),
			AgeDays: b.AgeDays,
			Signals: b.Signals,
		})
	}
	return out
}

func writeJSON(w io.Writer, results []result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func writeTable(w io.Writer, results []result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCORE\tALT\tAGE\tSIGNALS")
	for _, r := range results {
		signals := ""
		for i, s := range r.Signals {
			if i > 0 {
				signals += " "
			}
			signals += fmt.Sprintf("%s(%+d)", s.Name, s.Weight)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%dd\t%s\n", r.ID, r.Name, r.Score, r.Alt, r.AgeDays, signals)
	}
	return tw.Flush()
}
