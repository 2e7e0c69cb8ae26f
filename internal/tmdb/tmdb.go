// Package tmdb looks up poster artwork for media items on The Movie Database
// and caches the images locally.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	libcache "github.com/eko/gocache/lib/v4/cache"
	"github.com/jon4hz/sweepcrew/internal/cache"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultImageURL = "https://image.tmdb.org/t/p/w342"

	searchCachePrefix = "tmdb-search-"

	posterWidth = 342
)

// ErrNoPoster indicates the search matched nothing with artwork.
var ErrNoPoster = errors.New("no poster found")

type searchResult struct {
	ID         int64   `json:"id"`
	PosterPath string  `json:"poster_path"`
	Popularity float64 `json:"popularity"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Client provides poster lookups against the TMDB API.
type Client struct {
	apiKey      string
	baseURL     string
	imageURL    string
	posterDir   string
	httpClient  *http.Client
	searchCache *cache.PrefixedCache[string]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURLs overrides the API and image base URLs.
func WithBaseURLs(api, image string) Option {
	return func(c *Client) {
		if api != "" {
			c.baseURL = strings.TrimRight(api, "/")
		}
		if image != "" {
			c.imageURL = strings.TrimRight(image, "/")
		}
	}
}

// New creates a TMDB client. Poster images are stored in posterDir; search
// results are cached in cacheStore.
func New(apiKey, posterDir string, cacheStore *libcache.Cache[[]byte], opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	client := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		imageURL:    defaultImageURL,
		posterDir:   posterDir,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		searchCache: cache.NewPrefixedCache[string](cacheStore, searchCachePrefix),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// MoviePosterPath returns the TMDB poster path for a movie title and year.
func (c *Client) MoviePosterPath(ctx context.Context, title string, year *int) (string, error) {
	params := url.Values{}
	params.Set("query", title)
	if year != nil {
		params.Set("primary_release_year", strconv.Itoa(*year))
	}
	return c.searchPoster(ctx, "/search/movie", params)
}

// TVPosterPath returns the TMDB poster path for a TV show title.
func (c *Client) TVPosterPath(ctx context.Context, title string) (string, error) {
	params := url.Values{}
	params.Set("query", title)
	return c.searchPoster(ctx, "/search/tv", params)
}

func (c *Client) searchPoster(ctx context.Context, endpoint string, params url.Values) (string, error) {
	cacheKey := endpoint + "?" + params.Encode()
	if cached, err := c.searchCache.Get(ctx, cacheKey); err == nil {
		if cached == "" {
			return "", ErrNoPoster
		}
		return cached, nil
	}

	params.Set("api_key", c.apiKey)
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("parse tmdb url: %w", err)
	}
	u.RawQuery = params.Encode()

	var payload searchResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("tmdb search returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("tmdb search returned %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return backoff.Permanent(fmt.Errorf("decode tmdb response: %w", err))
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	posterPath := bestPoster(payload.Results)
	if err := c.searchCache.Set(ctx, cacheKey, posterPath); err != nil {
		log.Debug("failed to cache tmdb search result", "error", err)
	}
	if posterPath == "" {
		return "", ErrNoPoster
	}
	return posterPath, nil
}

// bestPoster picks the most popular result that has artwork.
func bestPoster(results []searchResult) string {
	best := ""
	bestPop := -1.0
	for _, r := range results {
		if r.PosterPath == "" {
			continue
		}
		if r.Popularity > bestPop {
			best = r.PosterPath
			bestPop = r.Popularity
		}
	}
	return best
}

// DownloadPoster fetches the poster image, downscales it to the poster width
// and stores it in the poster directory. Returns the local file path.
func (c *Client) DownloadPoster(ctx context.Context, posterPath string) (string, error) {
	local := filepath.Join(c.posterDir, filepath.Base(posterPath))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.imageURL+posterPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch poster: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch poster returned %d", resp.StatusCode)
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("decode poster: %w", err)
	}
	if img.Bounds().Dx() > posterWidth {
		img = imaging.Resize(img, posterWidth, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(c.posterDir, 0o755); err != nil {
		return "", err
	}
	if err := imaging.Save(img, local); err != nil {
		return "", fmt.Errorf("save poster: %w", err)
	}
	return local, nil
}
