package models

import (
	"time"
)

// UnknownName is the placeholder name assigned when no name heuristic matched.
const UnknownName = "Unknown"

// Record is the normalized output of an item scrape. Nil fields were not found.
type Record struct {
	Name        *string  `json:"name,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	Composition *string  `json:"composition,omitempty"`
	Description *string  `json:"description,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	Width       *string  `json:"width,omitempty"`
	Weight      *string  `json:"weight,omitempty"`
}

// IsEmpty reports whether no field at all was extracted, which is how a failed fetch surfaces.
func (r *Record) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.Name == nil && r.Price == nil && r.Currency == nil && r.Composition == nil &&
		r.Description == nil && r.ImageURL == nil && r.Width == nil && r.Weight == nil
}

// HasName reports whether the record carries a real name.
func (r *Record) HasName() bool {
	return r != nil && r.Name != nil && *r.Name != "" && *r.Name != UnknownName
}

func (r *Record) NameOr(def string) string {
	if r == nil || r.Name == nil {
		return def
	}
	return *r.Name
}

func (r *Record) CurrencyOr(def string) string {
	if r == nil || r.Currency == nil || *r.Currency == "" {
		return def
	}
	return *r.Currency
}

// ListingItem is a kept record together with the item URL it was scraped from.
type ListingItem struct {
	URL string `json:"url"`
	Record
}

// StopReason tells why a listing crawl ended.
type StopReason string

const (
	StopExhausted   StopReason = "exhausted"
	StopEmpty       StopReason = "empty"
	StopCapped      StopReason = "capped"
	StopFetchFailed StopReason = "fetch_failed"
	StopCanceled    StopReason = "canceled"
)

type ListingResult struct {
	Items      []ListingItem `json:"items"`
	IsListing  bool          `json:"is_listing"`
	TotalCount int           `json:"total_count"`
	Pages      int           `json:"pages"`
	StopReason StopReason    `json:"stop_reason"`
}

// ScrapeResult holds exactly one of Item or Listing.
type ScrapeResult struct {
	URL       string         `json:"url"`
	Item      *Record        `json:"item,omitempty"`
	Listing   *ListingResult `json:"listing,omitempty"`
	ScrapedAt time.Time      `json:"scraped_at"`
}

func (s *ScrapeResult) IsListing() bool {
	return s != nil && s.Listing != nil
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}

func FloatPtr(v float64) *float64 {
	return &v
}
