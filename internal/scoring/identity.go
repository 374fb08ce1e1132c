package scoring

import "time"

// Presence statuses as sent by the gateway.
const (
	StatusOnline  = "online"
	StatusIdle    = "idle"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)

// Activity types as sent by the gateway.
const (
	ActivityPlaying   = 0
	ActivityStreaming = 1
	ActivityListening = 2
	ActivityWatching  = 3
	ActivityCustom    = 4
	ActivityCompeting = 5
)

// Public flag bits consulted for badges.
const (
	FlagHouseBravery    int64 = 1 << 6
	FlagHouseBrilliance int64 = 1 << 7
	FlagHouseBalance    int64 = 1 << 8
	FlagActiveDeveloper int64 = 1 << 22
)

// Identity is the read-only snapshot of a member taken at join time.
type Identity struct {
	ID          string
	Username    string
	GlobalName  string
	Nick        string
	HasAvatar   bool
	Bot         bool
	CreatedAt   time.Time
	PublicFlags int64
	Boosting    bool
	Presence    *Presence
}

// DisplayName returns the name shown in the member list.
func (i Identity) DisplayName() string {
	if i.Nick != "" {
		return i.Nick
	}
	if i.GlobalName != "" {
		return i.GlobalName
	}
	return i.Username
}

type Presence struct {
	Status     string
	Activities []Activity
}

type Activity struct {
	Type          int
	Name          string
	ApplicationID string
	State         string
}

// Profile holds the fields not carried by gateway member objects.
type Profile struct {
	Bio           string   `json:"bio"`
	HasBanner     bool     `json:"has_banner"`
	HasDecoration bool     `json:"has_decoration"`
	Badges        []string `json:"badges"`
	// Partial is set when only the user object could be read; Bio and Badges
	// are unknown rather than empty.
	Partial bool `json:"partial"`
}

// HasBadge reports whether the profile lists a badge id.
func (p *Profile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b == id {
			return true
		}
	}
	return false
}
