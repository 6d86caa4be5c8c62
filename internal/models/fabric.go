package models

import (
	"time"
)

type Rating string

const (
	RatingYes     Rating = "yes"
	RatingNo      Rating = "no"
	RatingMaybe   Rating = "maybe"
	RatingUnrated Rating = "unrated"
)

func (r Rating) IsValid() bool {
	switch r {
	case RatingYes, RatingNo, RatingMaybe, RatingUnrated:
		return true
	}
	return false
}

// Fabric is a stored catalog entry.
type Fabric struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	Origin           string     `json:"origin"`
	Rating           Rating     `json:"rating"`
	Price            *float64   `json:"price,omitempty"`
	Currency         string     `json:"currency"`
	Composition      *string    `json:"composition,omitempty"`
	Description      *string    `json:"description,omitempty"`
	ImagePath        *string    `json:"image_path,omitempty"`
	ImagePaths       []string   `json:"image_paths,omitempty"`
	Width            *string    `json:"width,omitempty"`
	Weight           *string    `json:"weight,omitempty"`
	CareInstructions *string    `json:"care_instructions,omitempty"`
	Color            *string    `json:"color,omitempty"`
	Pattern          *string    `json:"pattern,omitempty"`
	Brand            *string    `json:"brand,omitempty"`
	ExtraInfo        *string    `json:"extra_info,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastScraped      *time.Time `json:"last_scraped,omitempty"`
}

type FabricFilter struct {
	Skip   int
	Limit  int
	Rating Rating
	Origin string
}

type FabricStats struct {
	Total   int            `json:"total"`
	Ratings map[Rating]int `json:"ratings"`
	Origins map[string]int `json:"origins"`
}
