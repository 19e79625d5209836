package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"skipfleet/internal/httputil"
	"skipfleet/internal/models"
)

const defaultBaseURL = "https://sponsor.ajay.app/api"

const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	ranges  []models.SkipRange
	fetched time.Time
}

// Client is a rate-limited, short-TTL-cached Provider talking to a
// SponsorBlock-compatible segment database.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func New(httpClient *http.Client) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(10, 5),
		cache:   make(map[string]cacheEntry),
	}
}

func NewWithBaseURL(httpClient *http.Client, baseURL string) *Client {
	c := New(httpClient)
	c.baseURL = baseURL
	return c
}

type segmentPayload struct {
	Segment  []float64 `json:"segment"`
	UUID     string    `json:"UUID"`
	Category string    `json:"category"`
}

func (c *Client) GetSegments(ctx context.Context, videoID string) ([]models.SkipRange, error) {
	if cached, ok := c.fromCache(videoID); ok {
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	query := url.Values{}
	query.Set("videoID", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/skipSegments?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching segments for %s: %w", videoID, err)
	}
	defer httputil.DrainBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		c.storeCache(videoID, nil)
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segment database returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}

	var payloads []segmentPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("decoding segments for %s: %w", videoID, err)
	}

	ranges := rangesFromPayload(payloads)
	c.storeCache(videoID, ranges)
	return ranges, nil
}

func rangesFromPayload(payloads []segmentPayload) []models.SkipRange {
	byWindow := map[[2]float64]*models.SkipRange{}
	var order [][2]float64
	for _, p := range payloads {
		if len(p.Segment) != 2 || p.UUID == "" {
			continue
		}
		key := [2]float64{p.Segment[0], p.Segment[1]}
		r, ok := byWindow[key]
		if !ok {
			r = &models.SkipRange{Start: key[0], End: key[1]}
			byWindow[key] = r
			order = append(order, key)
		}
		r.UUIDSet = append(r.UUIDSet, p.UUID)
		if p.Category != "" {
			r.Categories = append(r.Categories, p.Category)
		}
	}

	ranges := make([]models.SkipRange, 0, len(order))
	for _, key := range order {
		ranges = append(ranges, *byWindow[key])
	}
	sortRangesByStart(ranges)
	return ranges
}

func sortRangesByStart(ranges []models.SkipRange) {
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].Start < ranges[j-1].Start; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
}

func (c *Client) MarkViewed(ctx context.Context, uuidSet []string) error {
	for _, id := range uuidSet {
		query := url.Values{}
		query.Set("UUID", id)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/viewedVideoSponsorTime?"+query.Encode(), nil)
		if err != nil {
			return fmt.Errorf("creating mark-viewed request for %s: %w", id, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("marking %s viewed: %w", id, err)
		}
		httputil.DrainBody(resp)
	}
	return nil
}

func (c *Client) fromCache(videoID string) ([]models.SkipRange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[videoID]
	if !ok || time.Since(entry.fetched) > cacheTTL {
		return nil, false
	}
	return entry.ranges, true
}

func (c *Client) storeCache(videoID string, ranges []models.SkipRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[videoID] = cacheEntry{ranges: ranges, fetched: time.Now()}
}

var _ Provider = (*Client)(nil)
