// Package github implements the external activity feed against the
// GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/grovelab/grove/internal/domain"
	"github.com/grovelab/grove/internal/poller"
)

const (
	DefaultBaseURL = "https://api.github.com"

	requestTimeout = 10 * time.Second
	eventsPerPage  = 100
)

// Client fetches a recent-activity snapshot for one login. It implements
// poller.Client.
type Client struct {
	base string
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{base: baseURL}
}

// event is the slice of the GitHub events payload we care about.
type event struct {
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload struct {
		Size   int    `json:"size"`
		Action string `json:"action"`
	} `json:"payload"`
}

// Snapshot counts recent per-repository commits (PushEvent sizes) and
// opened pull requests from the login's public event feed. A rate-limit
// rejection is surfaced as *poller.RateLimitedError with the upstream
// reset hint when one is present.
func (c *Client) Snapshot(ctx context.Context, login domain.Login, token string) (*domain.ActivitySnapshot, error) {
	url := fmt.Sprintf("%s/users/%s/events?per_page=%d", c.base, login, eventsPerPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	httpc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpc.Timeout = requestTimeout

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		if reset := rateLimitReset(resp); reset >= 0 {
			log.Debug().Str("module", "github").Str("login", string(login)).Dur("reset", reset).Msg("rate limited")
			return nil, &poller.RateLimitedError{Reset: reset}
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("events request: unexpected status %d", resp.StatusCode)
	}

	var events []event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	snap := &domain.ActivitySnapshot{CommitsByRepo: make(map[string]int)}
	for _, ev := range events {
		switch ev.Type {
		case "PushEvent":
			snap.CommitsByRepo[ev.Repo.Name] += ev.Payload.Size
		case "PullRequestEvent":
			if ev.Payload.Action == "opened" {
				snap.PullRequests++
			}
		}
	}
	return snap, nil
}

// rateLimitReset decides whether the response is a rate-limit rejection
// and extracts the wait hint. It returns -1 for a plain 403 that has
// remaining quota, so auth failures are not mistaken for throttling.
func rateLimitReset(resp *http.Response) time.Duration {
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") != "0" {
		return -1
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(unix, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
