package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"

	"github.com/nmanikumar5/swappio/internal/rest"
)

// Listings wraps the listing CRUD endpoints.
type Listings struct {
	c *rest.Client
}

// NewListings creates the listings API client.
func NewListings(c *rest.Client) *Listings {
	return &Listings{c: c}
}

// SearchFilter narrows a listing search. Zero values are omitted.
type SearchFilter struct {
	Query    string
	Category string
	MaxPrice float64
	Page     int
	Limit    int
}

// Search returns listings matching the filter.
func (l *Listings) Search(ctx context.Context, f SearchFilter) ([]Listing, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.MaxPrice > 0 {
		q.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var listings []Listing
	if err := l.c.GetJSON(ctx, "/listings", q, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// Get fetches a single listing.
func (l *Listings) Get(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	if err := l.c.GetJSON(ctx, "/listings/"+url.PathEscape(id), nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Draft is the payload for creating or updating a listing.
type Draft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Category    string   `json:"category"`
	Images      []string `json:"images,omitempty"`
}

// Create publishes a new listing.
func (l *Listings) Create(ctx context.Context, d Draft) (*Listing, error) {
	var listing Listing
	if err := l.c.PostJSON(ctx, "/listings", d, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Update edits an existing listing.
func (l *Listings) Update(ctx context.Context, id string, d Draft) (*Listing, error) {
	var listing Listing
	if err := l.c.PutJSON(ctx, "/listings/"+url.PathEscape(id), d, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Delete removes a listing.
func (l *Listings) Delete(ctx context.Context, id string) error {
	return l.c.DeleteJSON(ctx, "/listings/"+url.PathEscape(id), nil)
}

// UploadImage uploads a listing image and returns its public URL.
func (l *Listings) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := l.c.PostMultipart(ctx, "/uploads", func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, r); err != nil {
			return fmt.Errorf("copy image: %w", err)
		}
		return nil
	}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}
