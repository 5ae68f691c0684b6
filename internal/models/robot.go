package models

import (
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Platform is the trading terminal a robot runs on.
type Platform string

const (
	PlatformMT4     Platform = "mt4"
	PlatformMT5     Platform = "mt5"
	PlatformCTrader Platform = "ctrader"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformMT4, PlatformMT5, PlatformCTrader:
		return true
	}
	return false
}

const PlaceholderImage = "/placeholder.svg"

// Robot is a marketplace listing.
type Robot struct {
	ID              string         `db:"id" json:"id"`
	SellerID        string         `db:"seller_id" json:"seller_id"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	LongDescription string         `db:"long_description" json:"long_description"`
	Price           float64        `db:"price" json:"price"`
	Platform        Platform       `db:"platform" json:"platform"`
	Features        pq.StringArray `db:"features" json:"features"`
	Compatibility   pq.StringArray `db:"compatibility" json:"compatibility"`
	Images          pq.StringArray `db:"images" json:"images"`
	Active          bool           `db:"active" json:"active"`
	Rating          float64        `db:"rating" json:"rating"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// RobotInput carries the editable listing fields.
type RobotInput struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	LongDescription string   `json:"long_description"`
	Price           float64  `json:"price"`
	Platform        Platform `json:"platform"`
	Features        []string `json:"features"`
	Compatibility   []string `json:"compatibility"`
	Images          []string `json:"images"`
}

// RobotCard is the catalog view of a listing.
type RobotCard struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Rating      float64   `json:"rating"`
	Tags        []string  `json:"tags"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Card maps a listing to its catalog view.
func (r Robot) Card() RobotCard {
	image := PlaceholderImage
	if len(r.Images) > 0 {
		image = r.Images[0]
	}
	tags := []string(r.Features)
	if len(tags) > 3 {
		tags = tags[:3]
	}
	return RobotCard{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Rating:      r.Rating,
		Tags:        append([]string{}, tags...),
		ImageURL:    image,
		CreatedAt:   r.CreatedAt,
	}
}

// RobotRating is one user's rating of a listing.
type RobotRating struct {
	RobotID   string    `db:"robot_id" json:"robot_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var (
	ErrTitleRequired       = errors.New("title is required")
	ErrDescriptionRequired = errors.New("description is required")
	ErrNegativePrice       = errors.New("price must not be negative")
	ErrInvalidPlatform     = errors.New("platform must be one of mt4, mt5, ctrader")
)

// Normalize trims every field, drops empty list entries and validates the form.
func (in RobotInput) Normalize() (RobotInput, error) {
	out := RobotInput{
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		LongDescription: strings.TrimSpace(in.LongDescription),
		Price:           in.Price,
		Platform:        Platform(strings.ToLower(strings.TrimSpace(string(in.Platform)))),
		Features:        compactLines(in.Features),
		Compatibility:   compactLines(in.Compatibility),
		Images:          compactLines(in.Images),
	}
	switch {
	case out.Title == "":
		return out, ErrTitleRequired
	case out.Description == "":
		return out, ErrDescriptionRequired
	case out.Price < 0:
		return out, ErrNegativePrice
	case !out.Platform.Valid():
		return out, ErrInvalidPlatform
	}
	return out, nil
}

func compactLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
