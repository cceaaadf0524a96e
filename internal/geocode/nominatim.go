// Package geocode talks to Nominatim and maps browser geolocation failures.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/quadra-map/internal/core/observability"
)

type Place struct {
	PlaceID     int64     `json:"placeId"`
	DisplayName string    `json:"displayName"`
	Point       orb.Point `json:"point"`
}

type Client struct {
	base      string
	userAgent string
	box       orb.Bound
	limit     int
	http      *http.Client
}

// NewClient bounds every search to box.
func NewClient(base, userAgent string, box orb.Bound, limit int, hc *http.Client) *Client {
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		base:      strings.TrimRight(base, "/"),
		userAgent: userAgent,
		box:       box,
		limit:     limit,
		http:      hc,
	}
}

// nominatim returns coordinates as strings
type nominatimPlace struct {
	PlaceID     int64  `json:"place_id"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (p nominatimPlace) place() (Place, bool) {
	lat, err1 := strconv.ParseFloat(p.Lat, 64)
	lon, err2 := strconv.ParseFloat(p.Lon, 64)
	if err1 != nil || err2 != nil {
		return Place{}, false
	}
	return Place{PlaceID: p.PlaceID, DisplayName: p.DisplayName, Point: orb.Point{lon, lat}}, true
}

// SearchURL builds the bounded search request for q.
func (c *Client) SearchURL(q string) string {
	v := url.Values{}
	v.Set("format", "json")
	v.Set("q", q)
	// left,top,right,bottom
	v.Set("viewbox", fmt.Sprintf("%s,%s,%s,%s",
		ftoa(c.box.Min.Lon()), ftoa(c.box.Max.Lat()), ftoa(c.box.Max.Lon()), ftoa(c.box.Min.Lat())))
	v.Set("bounded", "1")
	v.Set("limit", strconv.Itoa(c.limit))
	return c.base + "/search?" + v.Encode()
}

// Search returns zero or more places; a blank query returns none without a request.
func (c *Client) Search(ctx context.Context, q string) ([]Place, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	var raw []nominatimPlace
	if err := c.get(ctx, c.SearchURL(q), &raw); err != nil {
		return nil, err
	}
	out := make([]Place, 0, len(raw))
	for _, r := range raw {
		if p, ok := r.place(); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Reverse returns the display name for pt, or "" when Nominatim knows none.
func (c *Client) Reverse(ctx context.Context, pt orb.Point) (string, error) {
	v := url.Values{}
	v.Set("format", "json")
	v.Set("lat", ftoa(pt.Lat()))
	v.Set("lon", ftoa(pt.Lon()))
	var raw struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := c.get(ctx, c.base+"/reverse?"+v.Encode(), &raw); err != nil {
		return "", err
	}
	return raw.DisplayName, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	start := time.Now()
	err := c.do(ctx, u, out)
	observability.ObserveUpstream("nominatim", time.Since(start).Seconds(), err)
	return err
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build nominatim request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("nominatim status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode nominatim: %w", err)
	}
	return nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
