package entity

import "time"

// Product is one listing found for a query on one source.
type Product struct {
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Available bool      `json:"available"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
}
