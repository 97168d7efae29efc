// Package experienceconfig reads an experience's availability settings
// from the experiences service. Lookups are cache-aside through Redis so
// repeated default-capacity resolution does not hammer the provider.
package experienceconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/redis/go-redis/v9"

	"github.com/tourbase/experience-bookings/pkg/logger"
)

var (
	ErrExperienceNotFound = errors.New("experienceconfig: experience not found")
	ErrInvalidResponse    = errors.New("experienceconfig: invalid response")
	ErrUnavailable        = errors.New("experienceconfig: service unavailable")
)

// Availability is the slice of experience configuration this core reads:
// the default slot capacity and its per-participant-type breakdown.
type Availability struct {
	ExperienceID           int64          `json:"experience_id"`
	DefaultCapacityTotal   int            `json:"default_capacity_total"`
	DefaultCapacityPerType map[string]int `json:"default_capacity_per_type,omitempty"`
}

type availabilityQuery struct {
	ExperienceID int64 `url:"experience_id"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

// NewClient builds a client; cache may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) GetAvailability(ctx context.Context, experienceID int64) (*Availability, error) {
	if av, ok := c.cached(ctx, experienceID); ok {
		return av, nil
	}

	av, err := c.fetch(ctx, experienceID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, av)
	return av, nil
}

func (c *Client) fetch(ctx context.Context, experienceID int64) (*Availability, error) {
	params, err := query.Values(availabilityQuery{ExperienceID: experienceID})
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrInvalidResponse, err)
	}
	url := fmt.Sprintf("%s/v1/experiences/availability?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusNotFound:
		return nil, ErrExperienceNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrInvalidResponse, resp.StatusCode, string(body))
	}

	var av Availability
	if err := json.NewDecoder(resp.Body).Decode(&av); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	return &av, nil
}

func (c *Client) cached(ctx context.Context, experienceID int64) (*Availability, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(experienceID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.WarnContext(ctx, "Experience config cache read failed", "error", err, "experience_id", experienceID)
		}
		return nil, false
	}
	var av Availability
	if err := json.Unmarshal(raw, &av); err != nil {
		logger.WarnContext(ctx, "Experience config cache entry corrupt", "error", err, "experience_id", experienceID)
		return nil, false
	}
	return &av, true
}

func (c *Client) store(ctx context.Context, av *Availability) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(av)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(av.ExperienceID), raw, c.cacheTTL).Err(); err != nil {
		logger.WarnContext(ctx, "Experience config cache write failed", "error", err, "experience_id", av.ExperienceID)
	}
}

func cacheKey(experienceID int64) string {
	return fmt.Sprintf("expcfg:%d", experienceID)
}
