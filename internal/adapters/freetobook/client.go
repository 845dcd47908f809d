package freetobook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"cumbria_stays/internal/adapters/observability"
	"cumbria_stays/internal/domain"
)

// chunkDays stays under the upstream's documented 186-day range limit.
const chunkDays = 180

// diagLimit caps how much of an upstream body gets logged on failure.
const diagLimit = 800

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client proxies the per-property availability endpoint of the upstream
// booking-page service. The upstream expects browser-like traffic: a cookie
// session warmed on the property page, a Referer pointing at it, and ranges
// no longer than ~6 months per request.
type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		hc:   &http.Client{Timeout: 15 * time.Second, Jar: jar},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// FetchAvailability fetches [fromDate, toDate] in consecutive chunks and
// merges the per-date entries; on a date reported by two chunks the later
// chunk wins. The result is sorted ascending by date string.
func (c *Client) FetchAvailability(ctx context.Context, propertyID, fromDate, toDate string) (domain.ExternalAvailability, error) {
	var out domain.ExternalAvailability

	if propertyID == "" {
		return out, fmt.Errorf("missing property_id: %w", domain.ErrInvalid)
	}
	start, err := domain.ParseDate(fromDate)
	if err != nil {
		return out, err
	}
	end, err := domain.ParseDate(toDate)
	if err != nil {
		return out, err
	}
	if start.After(end) {
		return out, fmt.Errorf("from_date must be <= to_date: %w", domain.ErrInvalid)
	}

	pageURL := c.base + "/" + url.PathEscape(propertyID)
	availURL := pageURL + "/availability"

	// Warm session cookies on the property page; failure here is not fatal.
	c.warmup(ctx, pageURL)

	merged := map[string]domain.AvailabilityEntry{}
	for cur := start; !cur.After(end); {
		chunkEnd := cur.AddDate(0, 0, chunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		entries, err := c.fetchChunk(ctx, availURL, pageURL,
			cur.Format(domain.DateLayout), chunkEnd.Format(domain.DateLayout))
		if err != nil {
			return out, err
		}
		for _, e := range entries {
			d, _ := firstString(e, "date", "Date")
			if d == "" {
				continue
			}
			merged[d] = e // last chunk wins on duplicates
		}

		cur = chunkEnd.AddDate(0, 0, 1)
	}

	dates := make([]string, 0, len(merged))
	for d := range merged {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out = domain.ExternalAvailability{
		PropertyID: propertyID,
		FromDate:   fromDate,
		ToDate:     toDate,
		Entries:    make([]domain.AvailabilityEntry, 0, len(dates)),
	}
	for _, d := range dates {
		out.Entries = append(out.Entries, merged[d])
	}
	return out, nil
}

func (c *Client) warmup(ctx context.Context, pageURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := c.hc.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("availability warmup failed")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (c *Client) fetchChunk(ctx context.Context, availURL, pageURL, from, to string) ([]domain.AvailabilityEntry, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.doChunk(ctx, availURL, pageURL, from, to, true)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Str("from", from).Str("to", to).Msg("availability network error")
		return nil, fmt.Errorf("failed to fetch availability (network): %w", domain.ErrInvalid)
	}
	// Some upstream deployments reject the AJAX identification header.
	if resp.StatusCode == http.StatusForbidden {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		resp, err = c.doChunk(ctx, availURL, pageURL, from, to, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error().Err(err).Str("from", from).Str("to", to).Msg("availability network error on retry")
			return nil, fmt.Errorf("failed to fetch availability (network): %w", domain.ErrInvalid)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("availability body read failed")
		return nil, fmt.Errorf("failed to fetch availability (network): %w", domain.ErrInvalid)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).
			Str("body", truncate(string(body), diagLimit)).
			Msg("availability upstream HTTP error")
		return nil, fmt.Errorf("failed to fetch availability (HTTP %d): %w", resp.StatusCode, domain.ErrInvalid)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		log.Error().Str("body", truncate(string(body), diagLimit)).
			Msg("availability upstream returned non-JSON")
		return nil, fmt.Errorf("upstream did not return JSON: %w", domain.ErrInvalid)
	}
	return extractEntries(data), nil
}

func (c *Client) doChunk(ctx context.Context, availURL, pageURL, from, to string, ajaxHeader bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, availURL, nil)
	if err != nil {
		return nil, err
	}
	qp := req.URL.Query()
	qp.Set("from_date", from)
	qp.Set("to_date", to)
	req.URL.RawQuery = qp.Encode()

	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Origin", originOf(pageURL))
	req.Header.Set("Referer", pageURL)
	if ajaxHeader {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	observability.ObserveExternal("freetobook", "availability", status, time.Since(start))
	return resp, err
}

// extractEntries accepts the two upstream list spellings or a bare array.
func extractEntries(data any) []domain.AvailabilityEntry {
	var raw []any
	switch v := data.(type) {
	case map[string]any:
		for _, key := range []string{"datedPropertyAvailabilities", "dated_property_availabilities"} {
			if lst, ok := v[key].([]any); ok {
				raw = lst
				break
			}
		}
	case []any:
		raw = v
	}

	out := make([]domain.AvailabilityEntry, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func originOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	return u.Scheme + "://" + u.Host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
