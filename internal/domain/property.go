package domain

import "time"

type Property struct {
	ID            string
	Title         string
	PricePerNight float64
	Location      string
	Host          string // owning user (email)
	Features      string
	Rules         string
	Modified      time.Time
}

// PropertyView is the read model returned by queries; HostFullName is
// resolved from the user directory when available.
type PropertyView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	PricePerNight float64   `json:"price_per_night"`
	Location      string    `json:"location"`
	Host          string    `json:"host"`
	HostFullName  *string   `json:"host_full_name,omitempty"`
	Features      string    `json:"features"`
	Rules         string    `json:"rules"`
	Modified      time.Time `json:"modified"`
}

type PropertiesQuery struct {
	Q        string // free text over title/location/features (OR match)
	Host     string
	Location string // partial match
	MinPrice *float64
	MaxPrice *float64
	Sort     SortSpec
	Page     PageRequest
}

type PropertiesPage struct {
	Items  []PropertyView
	Paging Paging
}
