// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package toloka talks to the Toloka tracker. The site serves windows-1251
// HTML and keeps login state in a session cookie, so the client carries a
// cookie jar and transcodes every page before parsing.
package toloka

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/avast/retry-go"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/pkg/httphelpers"
)

var (
	// ErrLoginFailed means the tracker rejected the configured credentials.
	ErrLoginFailed = errors.New("toloka: login failed")
	// ErrNotFound means the requested topic does not exist or is hidden.
	ErrNotFound = errors.New("toloka: release not found")
)

const (
	maxBodySize      = 10 << 20
	downloadCacheTTL = 10 * time.Minute
)

// Release is one tracker entry, either a search row or a full topic page.
type Release struct {
	Title       string
	GUID        string
	DownloadURL string
	PublishDate string
	Author      string
	Size        string
	Seeders     int
}

// Client is a session-holding tracker client. Safe for concurrent use.
type Client struct {
	http     *http.Client
	baseURL  string
	username string
	password string
	cache    *ttlcache.Cache[string, []byte]

	mu       sync.Mutex
	loggedIn bool
}

// NewClient builds a tracker client. requestTimeout caps every single HTTP
// exchange, not whole operations.
func NewClient(baseURL, username, password string, requestTimeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("toloka: base url is required")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "build cookie jar")
	}

	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		cache: ttlcache.New[string, []byte](
			ttlcache.Options[string, []byte]{}.SetDefaultTTL(downloadCacheTTL),
		),
	}, nil
}

// Login authenticates against login.php. The tracker answers a successful
// login with a redirect away from the login page, a failed one re-renders it.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"username":  {c.username},
		"password":  {c.password},
		"autologin": {"on"},
		"ss":        {"1"},
		"redirect":  {"index.php?"},
		"login":     {"Вхід"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.absoluteURL("login.php"), strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post login")
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrLoginFailed, "unexpected status %d", resp.StatusCode)
	}
	if strings.Contains(resp.Request.URL.Path, "login.php") {
		return ErrLoginFailed
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()

	log.Debug().Str("user", c.username).Msg("Logged in to Toloka")
	return nil
}

func (c *Client) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	loggedIn := c.loggedIn
	c.mu.Unlock()
	if loggedIn {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

// Search queries tracker.php and returns releases best-first: title containing
// the query outrank fuzzy matches, fuzzy rank breaks ties, seeders break the
// rest.
func (c *Client) Search(ctx context.Context, query string) ([]Release, error) {
	page, contentType, err := c.get(ctx, "tracker.php?nm="+url.QueryEscape(query))
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}

	doc, err := decodeHTML(page, contentType)
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}

	releases := parseSearchPage(doc)
	for i := range releases {
		releases[i].DownloadURL = c.absoluteURL(releases[i].DownloadURL)
	}
	rankReleases(query, releases)

	log.Debug().Str("query", query).Int("results", len(releases)).Msg("Tracker search finished")
	return releases, nil
}

// GetRelease fetches one topic page by its guid (the t-prefixed topic path).
func (c *Client) GetRelease(ctx context.Context, guid string) (*Release, error) {
	page, contentType, err := c.get(ctx, guid)
	if err != nil {
		return nil, errors.Wrapf(err, "get release %s", guid)
	}

	doc, err := decodeHTML(page, contentType)
	if err != nil {
		return nil, errors.Wrapf(err, "get release %s", guid)
	}

	release, ok := parseTopicPage(doc)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "topic %s", guid)
	}
	release.GUID = guid
	release.DownloadURL = c.absoluteURL(release.DownloadURL)
	return &release, nil
}

// Download fetches the torrent payload for a release. Payloads are cached for
// a short while so the delete-and-re-add path does not hit the tracker twice.
func (c *Client) Download(ctx context.Context, release *Release) ([]byte, error) {
	if release.DownloadURL == "" {
		return nil, errors.New("toloka: release has no download link")
	}

	if data, ok := c.cache.Get(release.GUID); ok && len(data) > 0 {
		log.Debug().Str("guid", release.GUID).Msg("Torrent payload served from cache")
		return data, nil
	}

	var payload []byte
	err := retry.Do(
		func() error {
			data, err := c.getBytes(ctx, release.DownloadURL)
			if err != nil {
				return err
			}
			if looksLikeHTML(data) {
				// The tracker serves the login page instead of the file
				// once the session drops.
				c.invalidateSession()
				return errors.New("received html instead of torrent payload")
			}
			payload = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "download torrent %s", release.GUID)
	}

	c.cache.Set(release.GUID, payload, ttlcache.DefaultTTL)
	return payload, nil
}

// get fetches a tracker page, re-authenticating once when the tracker bounces
// the request to the login form.
func (c *Client) get(ctx context.Context, ref string) ([]byte, string, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, "", err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.absoluteURL(ref), nil)
		if err != nil {
			return nil, "", errors.Wrap(err, "build request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, "", errors.Wrapf(err, "get %s", ref)
		}

		if strings.Contains(resp.Request.URL.Path, "login.php") {
			httphelpers.DrainAndClose(resp)
			if attempt > 0 {
				return nil, "", ErrLoginFailed
			}
			c.invalidateSession()
			if err := c.ensureLogin(ctx); err != nil {
				return nil, "", err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			httphelpers.DrainAndClose(resp)
			return nil, "", errors.Errorf("get %s: unexpected status %d", ref, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		contentType := resp.Header.Get("Content-Type")
		httphelpers.DrainAndClose(resp)
		if err != nil {
			return nil, "", errors.Wrapf(err, "read %s", ref)
		}
		return body, contentType, nil
	}
}

func (c *Client) getBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(errors.Wrap(err, "build request"))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", rawURL)
	}
	defer httphelpers.DrainAndClose(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	default:
		return nil, retry.Unrecoverable(errors.Errorf("get %s: status %d", rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", rawURL)
	}
	return body, nil
}

func (c *Client) absoluteURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || ref == "" {
		return ref
	}
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(ref, "/"))
}

func looksLikeHTML(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// rankReleases orders in place: contains-match first, then fuzzy rank, then
// seeders. A fuzzy rank of -1 means no match and sorts last within its group.
func rankReleases(query string, releases []Release) {
	lowered := strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		rel      Release
		contains bool
		rank     int
	}
	items := make([]scored, len(releases))
	for i, rel := range releases {
		rank := fuzzy.RankMatchNormalizedFold(query, rel.Title)
		if rank < 0 {
			rank = int(^uint(0) >> 1)
		}
		items[i] = scored{
			rel:      rel,
			contains: lowered != "" && strings.Contains(strings.ToLower(rel.Title), lowered),
			rank:     rank,
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].contains != items[j].contains {
			return items[i].contains
		}
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].rel.Seeders > items[j].rel.Seeders
	})

	for i, it := range items {
		releases[i] = it.rel
	}
}
