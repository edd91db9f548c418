package api

import (
	"context"
	"net/url"

	"github.com/nmanikumar5/swappio/internal/rest"
)

// Favorites wraps the favorites endpoints.
type Favorites struct {
	c *rest.Client
}

// NewFavorites creates the favorites API client.
func NewFavorites(c *rest.Client) *Favorites {
	return &Favorites{c: c}
}

// List returns the user's favorited listings.
func (f *Favorites) List(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	if err := f.c.GetJSON(ctx, "/favorites", nil, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// Add favorites a listing.
func (f *Favorites) Add(ctx context.Context, listingID string) error {
	return f.c.PostJSON(ctx, "/favorites/"+url.PathEscape(listingID), nil, nil)
}

// Remove unfavorites a listing.
func (f *Favorites) Remove(ctx context.Context, listingID string) error {
	return f.c.DeleteJSON(ctx, "/favorites/"+url.PathEscape(listingID), nil)
}

// Reports wraps the abuse-report endpoint.
type Reports struct {
	c *rest.Client
}

// NewReports creates the reports API client.
func NewReports(c *rest.Client) *Reports {
	return &Reports{c: c}
}

// Create files a report against a listing.
func (r *Reports) Create(ctx context.Context, listingID, reason, details string) error {
	return r.c.PostJSON(ctx, "/reports", map[string]string{
		"listingId": listingID,
		"reason":    reason,
		"details":   details,
	}, nil)
}

// Config wraps the server-driven app configuration endpoint.
type Config struct {
	c *rest.Client
}

// NewConfig creates the config API client.
func NewConfig(c *rest.Client) *Config {
	return &Config{c: c}
}

// Get fetches the app configuration (categories, payment plans).
func (cf *Config) Get(ctx context.Context) (*AppConfig, error) {
	var out AppConfig
	if err := cf.c.GetJSON(ctx, "/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
