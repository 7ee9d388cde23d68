package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Fetcher downloads the raw CSV feed. Responses are decoded from
// Windows-1252 (the export format of the upstream source) and cached in a
// small LRU so repeated reloads within the TTL do not refetch.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, cachedBody]
	ttl    time.Duration
}

type cachedBody struct {
	body      []byte
	fetchedAt time.Time
}

// NewFetcher creates a Fetcher with the given cache TTL. A non-positive
// ttl disables caching.
func NewFetcher(ttl time.Duration) *Fetcher {
	cache, _ := lru.New[string, cachedBody](8)
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  cache,
		ttl:    ttl,
	}
}

// FetchCSV returns the decoded feed bytes for url.
func (f *Fetcher) FetchCSV(ctx context.Context, url string) ([]byte, error) {
	if f.ttl > 0 {
		if entry, ok := f.cache.Get(url); ok && time.Since(entry.fetchedAt) < f.ttl {
			return entry.body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	utf8Reader := transform.NewReader(resp.Body, charmap.Windows1252.NewDecoder())
	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, err
	}

	if f.ttl > 0 {
		f.cache.Add(url, cachedBody{body: body, fetchedAt: time.Now()})
	}
	return body, nil
}
