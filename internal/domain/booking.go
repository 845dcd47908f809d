package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for booking dates. Bookings
// conflict per calendar date; no time component is kept.
const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, ErrInvalid)
	}
	return d, nil
}

type BookingStatus string

const (
	StatusActive    BookingStatus = "Active"
	StatusCancelled BookingStatus = "Cancelled"
)

type Booking struct {
	ID               string
	PropertyID       string
	User             string // the booker (email)
	BookingDate      time.Time
	PaymentCompleted bool
	Status           BookingStatus

	// set only when Status == StatusCancelled
	CancelReason *string
	CancelledBy  *string
	CancelledAt  *time.Time

	Modified time.Time
}

// BookingView is a booking row plus optional enrichment.
type BookingView struct {
	ID               string          `json:"id"`
	PropertyID       string          `json:"property_id"`
	User             string          `json:"user"`
	BookingDate      string          `json:"booking_date"`
	PaymentCompleted bool            `json:"payment_completed"`
	Status           BookingStatus   `json:"status"`
	Modified         time.Time       `json:"modified"`
	Property         *PropertySummary `json:"property,omitempty"`
	UserDetails      *UserDetails     `json:"user_details,omitempty"`
}

type PropertySummary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Location      string  `json:"location"`
	Host          string  `json:"host"`
	PricePerNight float64 `json:"price_per_night"`
}

// StatusFilter selects which booking statuses a listing returns.
type StatusFilter string

const (
	FilterActive    StatusFilter = "Active"
	FilterCancelled StatusFilter = "Cancelled"
	FilterAll       StatusFilter = "All"
)

type BookingsQuery struct {
	PropertyID string
	User       string
	Host       string // indirect: resolves to properties owned by this host
	Q          string // free text over property title/location/features
	Status     StatusFilter
	From       *time.Time
	To         *time.Time
	Sort       SortSpec
	Page       PageRequest

	IncludeProperty bool
	IncludeUser     bool
}

// BookingsFilter is the storage-level shape after the service has resolved
// host/q allowlists and role scoping. An empty PropertyIDs with
// HasPropertyIDs set means "match nothing".
type BookingsFilter struct {
	PropertyID     string
	PropertyIDs    []string
	HasPropertyIDs bool
	User           string
	Status         StatusFilter
	From           *time.Time
	To             *time.Time
	Sort           SortSpec
	Offset         int
	Limit          int // storage fetches Limit rows; callers pass limit+1
}

type BookingsPage struct {
	Items  []BookingView
	Paging Paging
}
