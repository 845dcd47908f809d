package app

import (
	"context"
	"fmt"
	"time"

	"cumbria_stays/internal/domain"
)

// AvailabilityService derives per-date availability from stored bookings.
// Availability is never persisted; reads go through the cache with a short
// TTL and booking writes invalidate the affected date.
type AvailabilityService struct {
	bookings domain.BookingRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewAvailabilityService(b domain.BookingRepository, c domain.Cache, ttl time.Duration) *AvailabilityService {
	return &AvailabilityService{bookings: b, cache: c, cacheTTL: ttl}
}

func availKey(propertyID string, date time.Time) string {
	return fmt.Sprintf("avail:%s:%s", propertyID, date.Format(domain.DateLayout))
}

// CheckAvailable reports whether no Active booking exists for the
// (property, date) pair.
func (s *AvailabilityService) CheckAvailable(ctx context.Context, propertyID string, date time.Time) (bool, error) {
	key := availKey(propertyID, date)
	var available bool
	if ok, _ := s.cache.Get(ctx, key, &available); ok {
		return available, nil
	}
	booked, err := s.bookings.ExistsActive(ctx, propertyID, date, "")
	if err != nil {
		return false, err
	}
	available = !booked
	_ = s.cache.Set(ctx, key, available, int(s.cacheTTL.Seconds()))
	return available, nil
}

// UnavailableDates returns the dates in [from, to] that carry an Active
// booking, ascending and deduplicated.
func (s *AvailabilityService) UnavailableDates(ctx context.Context, propertyID string, from, to time.Time) ([]string, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from must be on or before to: %w", domain.ErrInvalid)
	}
	dates, err := s.bookings.ActiveDates(ctx, propertyID, from, to)
	if err != nil {
		return nil, err
	}
	return dates, nil
}

// Invalidate drops the cached availability for one (property, date) pair.
// Called by the booking lifecycle after every create or cancel.
func (s *AvailabilityService) Invalidate(ctx context.Context, propertyID string, date time.Time) {
	_ = s.cache.Del(ctx, availKey(propertyID, date))
}
