package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestCreateListing(t *testing.T) {
	var got Draft
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/listings" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"_id":"l1","title":"Bike","price":120,"currency":"EUR","seller":"self","status":"active","createdAt":"2026-03-01T12:00:00Z"}`))
	}))

	listing, err := NewListings(c).Create(context.Background(), Draft{
		Title: "Bike", Description: "City bike", Price: 120, Currency: "EUR", Category: "sports",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Bike" || got.Price != 120 {
		t.Errorf("draft body = %+v, want title/price carried", got)
	}
	if listing.ID != "l1" || listing.Status != "active" {
		t.Errorf("listing = %+v, want l1/active", listing)
	}
}

func TestDeleteListing(t *testing.T) {
	var gotMethod, gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := NewListings(c).Delete(context.Background(), "l1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/listings/l1" {
		t.Errorf("request = %s %s, want DELETE /listings/l1", gotMethod, gotPath)
	}
}

func TestUploadImageMultipart(t *testing.T) {
	var gotField, gotFilename, gotBody string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not a multipart request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			f, _ := headers[0].Open()
			data, _ := io.ReadAll(f)
			gotBody = string(data)
		}
		_, _ = w.Write([]byte(`{"url":"https://cdn.swappio.app/img/abc.jpg"}`))
	}))

	url, err := NewListings(c).UploadImage(context.Background(), "bike.jpg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if gotField != "image" || gotFilename != "bike.jpg" || gotBody != "jpeg-bytes" {
		t.Errorf("multipart = field %q file %q body %q", gotField, gotFilename, gotBody)
	}
	if url != "https://cdn.swappio.app/img/abc.jpg" {
		t.Errorf("url = %q", url)
	}
}
