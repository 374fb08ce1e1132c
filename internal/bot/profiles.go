package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	errInvalidProfile = errors.New("invalid profile payload")
	errProfileDenied  = errors.New("profile endpoint not available to this token")
)

type restRequester interface {
	RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error)
}

// ProfileFetcher loads the profile fields the scorer needs. Banner and avatar
// decoration come from the user object, which bot tokens can read. Bio and
// badges come from the profile endpoint, which is tried best effort and
// switched off for the process once Discord refuses it. Results are cached in
// memory and Redis so repeated joins of the same account do not refetch.
type ProfileFetcher struct {
	rest          restRequester
	cache         *cache.Cache[*scoring.Profile]
	profileDenied atomic.Bool
	logger        *zap.Logger
}

func NewProfileFetcher(rest restRequester, c *cache.Cache[*scoring.Profile], logger *zap.Logger) *ProfileFetcher {
	return &ProfileFetcher{
		rest:   rest,
		cache:  c,
		logger: logger.Named("profiles"),
	}
}

func (f *ProfileFetcher) FetchProfile(ctx context.Context, userID string) (*scoring.Profile, error) {
	return f.cache.Get(ctx, userID, func(ctx context.Context) (*scoring.Profile, error) {
		return f.fetch(ctx, userID)
	})
}

func (f *ProfileFetcher) fetch(ctx context.Context, userID string) (*scoring.Profile, error) {
	body, err := f.rest.RequestWithBucketID(http.MethodGet, discordgo.EndpointUser(userID), nil, discordgo.EndpointUsers, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	profile, err := parseUser(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user %s: %w", userID, err)
	}

	extra, err := f.fetchExtended(ctx, userID)
	if err != nil {
		f.logger.Debug("Extended profile unavailable, bio signals skipped",
			zap.String("user_id", userID), zap.Error(err))
		profile.Partial = true
		return profile, nil
	}
	profile.Bio = extra.Bio
	profile.Badges = extra.Badges
	profile.HasBanner = profile.HasBanner || extra.HasBanner
	profile.HasDecoration = profile.HasDecoration || extra.HasDecoration

	f.logger.Debug("Fetched profile",
		zap.String("user_id", userID),
		zap.Int("badges", len(profile.Badges)))
	return profile, nil
}

func (f *ProfileFetcher) fetchExtended(ctx context.Context, userID string) (*scoring.Profile, error) {
	if f.profileDenied.Load() {
		return nil, errProfileDenied
	}
	endpoint := discordgo.EndpointUser(userID) + "/profile"
	body, err := f.rest.RequestWithBucketID(http.MethodGet, endpoint, nil, discordgo.EndpointUsers+"profile", discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil &&
			(restErr.Response.StatusCode == http.StatusUnauthorized || restErr.Response.StatusCode == http.StatusForbidden) {
			if !f.profileDenied.Swap(true) {
				f.logger.Info("Profile endpoint refused, using user objects only",
					zap.Int("status", restErr.Response.StatusCode))
			}
		}
		return nil, err
	}
	return parseProfile(body)
}

// parseUser reads a user object.
func parseUser(body []byte) (*scoring.Profile, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidProfile
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, errInvalidProfile
	}
	deco := res.Get("avatar_decoration_data")
	return &scoring.Profile{
		HasBanner:     res.Get("banner").String() != "",
		HasDecoration: deco.IsObject() && deco.Get("asset").String() != "",
	}, nil
}

// parseProfile reads a profile payload. The bio and banner may live on either
// the user object or the guild-less user_profile object.
func parseProfile(body []byte) (*scoring.Profile, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidProfile
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return nil, errInvalidProfile
	}

	p := &scoring.Profile{
		Bio: res.Get("user_profile.bio").String(),
	}
	if p.Bio == "" {
		p.Bio = res.Get("user.bio").String()
	}
	p.HasBanner = res.Get("user.banner").String() != "" || res.Get("user_profile.banner").String() != ""

	deco := res.Get("user.avatar_decoration_data")
	p.HasDecoration = deco.IsObject() && deco.Get("asset").String() != ""

	res.Get("badges.#.id").ForEach(func(_, id gjson.Result) bool {
		if id.String() != "" {
			p.Badges = append(p.Badges, id.String())
		}
		return true
	})
	return p, nil
}
