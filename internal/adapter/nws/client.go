// Package nws reads Public Information Statements (PNS) from the NWS
// products API and turns their METADATA observations into LSR-shaped
// features. Damage surveys and snowfall or rainfall totals often appear
// there hours before the LSR feed catches up.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/resilience"
	"github.com/jonboulle/clockwork"
)

// MaxProducts caps how many recent statements are read per call.
const MaxProducts = 50

// Product is a PNS listing entry.
type Product struct {
	ID            string    `json:"id"`
	IssuingOffice string    `json:"issuingOffice"`
	IssuanceTime  time.Time `json:"issuanceTime"`
}

type listing struct {
	Graph []Product `json:"@graph"`
}

type productBody struct {
	ProductText string `json:"productText"`
}

// Client fetches recent statements through the resilience layer.
type Client struct {
	doer      upstream.Doer
	baseURL   string
	userAgent string
	clock     clockwork.Clock
	texts     *textCache
	logger    *slog.Logger
}

// NewClient creates a client for the products API at baseURL
// (https://api.weather.gov/products). Product texts never change once
// issued, so up to cacheSize of them are kept in memory.
func NewClient(doer upstream.Doer, baseURL, userAgent string, cacheSize int, clock clockwork.Clock, logger *slog.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		doer:      doer,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		clock:     clock,
		texts:     newTextCache(cacheSize),
		logger:    logger,
	}
}

// Recent returns the observations from statements issued within window,
// newest statement first. A statement that cannot be read is logged and
// skipped; only a failed listing is an error.
func (c *Client) Recent(ctx context.Context, window time.Duration) (domain.FeatureCollection, error) {
	products, err := c.list(ctx)
	if err != nil {
		return domain.FeatureCollection{}, err
	}

	cutoff := c.clock.Now().Add(-window)
	recent := products[:0]
	for _, p := range products {
		if !p.IssuanceTime.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].IssuanceTime.After(recent[j].IssuanceTime) })
	if len(recent) > MaxProducts {
		recent = recent[:MaxProducts]
	}

	features := []domain.Feature{}
	seen := make(map[string]bool, len(recent))
	for _, p := range recent {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		text, err := c.text(ctx, p.ID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.FeatureCollection{}, err
			}
			c.logger.Warn("pns product fetch failed, skipping", "product", p.ID, "error", err, "kind", domain.ErrorKind(err))
			continue
		}
		entries := ParseMetadata(text)
		for _, e := range entries {
			features = append(features, e.Feature(p))
		}
		c.logger.Debug("pns product parsed", "product", p.ID, "office", p.IssuingOffice, "entries", len(entries))
	}

	c.logger.Info("pns statements read", "products", len(recent), "reports", len(features))
	return domain.NewFeatureCollection(features), nil
}

func (c *Client) list(ctx context.Context) ([]Product, error) {
	var l listing
	if err := c.getJSON(ctx, c.baseURL+"/types/PNS", &l); err != nil {
		return nil, fmt.Errorf("list pns products: %w", err)
	}
	return l.Graph, nil
}

func (c *Client) text(ctx context.Context, id string) (string, error) {
	if text, ok := c.texts.get(id); ok {
		return text, nil
	}
	var body productBody
	if err := c.getJSON(ctx, c.baseURL+"/"+id, &body); err != nil {
		return "", fmt.Errorf("product %s: %w", id, err)
	}
	// Only cache non-empty texts so a product still being published is retried.
	if strings.TrimSpace(body.ProductText) != "" {
		c.texts.put(id, body.ProductText)
	}
	return body.ProductText, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.doer.Do(ctx, resilience.Request{
		Method: http.MethodGet,
		URL:    url,
		Header: http.Header{
			"Accept":     {"application/ld+json"},
			"User-Agent": {c.userAgent},
		},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamMalformed, err)
	}
	return nil
}
