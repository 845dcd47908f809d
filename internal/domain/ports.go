package domain

import (
	"context"
	"time"
)

type PropertyRepository interface {
	// Write paths
	Insert(ctx context.Context, p Property) error
	Update(ctx context.Context, p Property) error
	Delete(ctx context.Context, id string) error

	// Read paths
	Get(ctx context.Context, id string) (Property, error)
	List(ctx context.Context, q PropertiesQuery) (PropertiesPage, error)
	TitleExists(ctx context.Context, title, excludeID string) (bool, error)
	IDsByHost(ctx context.Context, host string) ([]string, error)
	IDsMatching(ctx context.Context, q string) ([]string, error)
	SummariesByIDs(ctx context.Context, ids []string) (map[string]PropertySummary, error)
}

type BookingRepository interface {
	// Write paths
	Insert(ctx context.Context, b Booking) error
	Update(ctx context.Context, b Booking) error

	// Read paths
	Get(ctx context.Context, id string) (Booking, error)
	List(ctx context.Context, f BookingsFilter) ([]BookingView, error)
	ExistsActive(ctx context.Context, propertyID string, date time.Time, excludeID string) (bool, error)
	ActiveDates(ctx context.Context, propertyID string, from, to time.Time) ([]string, error)
	FindActiveIDs(ctx context.Context, propertyID string, date time.Time, user string) ([]string, error)
	CountByProperty(ctx context.Context, propertyID string) (int, error)
}

// UserDirectory is the read side of the identity collaborator: role
// membership and display detail for known users.
type UserDirectory interface {
	RolesOf(ctx context.Context, user string) ([]string, error)
	DetailsByEmails(ctx context.Context, emails []string) (map[string]UserDetails, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// AvailabilityEntry is one per-date record from the external availability
// service, passed through untyped since upstream fields vary by deployment.
type AvailabilityEntry = map[string]any

type ExternalAvailability struct {
	PropertyID string              `json:"propertyId"`
	FromDate   string              `json:"fromDate"`
	ToDate     string              `json:"toDate"`
	Entries    []AvailabilityEntry `json:"datedPropertyAvailabilities"`
}

type AvailabilityClient interface {
	FetchAvailability(ctx context.Context, propertyID, fromDate, toDate string) (ExternalAvailability, error)
}
