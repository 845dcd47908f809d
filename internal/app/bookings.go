package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cumbria_stays/internal/domain"
)

var bookingSortKeys = map[string]string{
	"booking_date": "booking_date",
	"modified":     "modified",
	"name":         "id",
}

var defaultBookingSort = domain.SortSpec{Key: "booking_date", Desc: true}

// ParseBookingSort whitelists a raw order_by value for booking listings.
func ParseBookingSort(raw string) domain.SortSpec {
	return domain.ParseSort(raw, bookingSortKeys, defaultBookingSort)
}

type BookingService struct {
	bookings   domain.BookingRepository
	properties domain.PropertyRepository
	users      domain.UserDirectory
	avail      *AvailabilityService

	now func() time.Time
	id  func() string
}

func NewBookingService(b domain.BookingRepository, p domain.PropertyRepository, u domain.UserDirectory, avail *AvailabilityService) *BookingService {
	return &BookingService{
		bookings:   b,
		properties: p,
		users:      u,
		avail:      avail,
		now:        time.Now,
		id:         uuid.NewString,
	}
}

type CreateBookingInput struct {
	PropertyID       string
	User             string // target booker; empty defaults to the actor
	Date             string // YYYY-MM-DD
	PaymentCompleted bool
}

// Create persists a new Active booking after the uniqueness check and the
// delegated-booking rules pass. Returns the booking id.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput, actor domain.Identity) (string, error) {
	if actor.IsGuest() {
		return "", fmt.Errorf("login required: %w", domain.ErrForbidden)
	}
	if in.PropertyID == "" || in.Date == "" {
		return "", fmt.Errorf("property_id and date are required: %w", domain.ErrInvalid)
	}
	d, err := domain.ParseDate(in.Date)
	if err != nil {
		return "", err
	}

	prop, err := s.properties.Get(ctx, in.PropertyID)
	if err != nil {
		return "", err
	}

	target := in.User
	if target == "" {
		target = actor.User
	}
	if target != actor.User && !Authorize(ActionDelegateBooking, actor, prop.Host) {
		if actor.IsHost() && !actor.IsAdmin() && !actor.HasRole(domain.RoleSupport) {
			return "", fmt.Errorf("hosts can only book on behalf for their own properties: %w", domain.ErrForbidden)
		}
		return "", fmt.Errorf("not allowed to book on behalf of another user: %w", domain.ErrForbidden)
	}

	booked, err := s.bookings.ExistsActive(ctx, prop.ID, d, "")
	if err != nil {
		return "", err
	}
	if booked {
		return "", fmt.Errorf("property already booked for that date: %w", domain.ErrConflict)
	}

	b := domain.Booking{
		ID:               s.id(),
		PropertyID:       prop.ID,
		User:             target,
		BookingDate:      d,
		PaymentCompleted: in.PaymentCompleted,
		Status:           domain.StatusActive,
	}
	if err := s.bookings.Insert(ctx, b); err != nil {
		// the store-level unique key may fire when two requests race past the
		// existence check; surface it the same way
		if errors.Is(err, domain.ErrConflict) {
			return "", fmt.Errorf("property already booked for that date: %w", domain.ErrConflict)
		}
		return "", err
	}
	s.avail.Invalidate(ctx, prop.ID, d)

	log.Info().Str("booking", b.ID).Str("property", prop.ID).
		Str("user", target).Str("date", in.Date).Msg("booking created")
	return b.ID, nil
}

type CancelBookingInput struct {
	BookingID  string
	PropertyID string
	Date       string
	User       string
	Reason     string
}

type CancelResult struct {
	BookingID        string
	AlreadyCancelled bool
}

// Cancel transitions a booking to Cancelled. The booking is located either
// by id or by a (property, date[, user]) triple; cancellation is idempotent.
func (s *BookingService) Cancel(ctx context.Context, in CancelBookingInput, actor domain.Identity) (CancelResult, error) {
	if actor.IsGuest() {
		return CancelResult{}, fmt.Errorf("login required: %w", domain.ErrForbidden)
	}

	var b domain.Booking
	var err error
	if in.BookingID != "" {
		b, err = s.bookings.Get(ctx, in.BookingID)
		if err != nil {
			return CancelResult{}, err
		}
	} else {
		b, err = s.resolveByTriple(ctx, in, actor)
		if err != nil {
			return CancelResult{}, err
		}
	}

	prop, err := s.properties.Get(ctx, b.PropertyID)
	if err != nil {
		return CancelResult{}, err
	}
	if !Authorize(ActionCancelBooking, actor, b.User) &&
		!Authorize(ActionCancelBooking, actor, prop.Host) {
		return CancelResult{}, fmt.Errorf("not permitted to cancel this booking: %w", domain.ErrForbidden)
	}

	if b.Status == domain.StatusCancelled {
		return CancelResult{BookingID: b.ID, AlreadyCancelled: true}, nil
	}

	now := s.now()
	b.Status = domain.StatusCancelled
	if in.Reason != "" {
		b.CancelReason = &in.Reason
	}
	b.CancelledBy = &actor.User
	b.CancelledAt = &now
	if err := s.bookings.Update(ctx, b); err != nil {
		return CancelResult{}, err
	}
	s.avail.Invalidate(ctx, b.PropertyID, b.BookingDate)

	log.Info().Str("booking", b.ID).Str("by", actor.User).Msg("booking cancelled")
	return CancelResult{BookingID: b.ID}, nil
}

func (s *BookingService) resolveByTriple(ctx context.Context, in CancelBookingInput, actor domain.Identity) (domain.Booking, error) {
	if in.PropertyID == "" || in.Date == "" {
		return domain.Booking{}, fmt.Errorf("provide booking_id or property_id + date: %w", domain.ErrInvalid)
	}
	d, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.Booking{}, err
	}

	prop, err := s.properties.Get(ctx, in.PropertyID)
	if err != nil {
		return domain.Booking{}, err
	}

	// Only an admin or the owning host may search across other users'
	// bookings; everyone else is pinned to a booker.
	user := in.User
	if !actor.IsAdmin() && actor.User != prop.Host && user == "" {
		user = actor.User
	}

	ids, err := s.bookings.FindActiveIDs(ctx, prop.ID, d, user)
	if err != nil {
		return domain.Booking{}, err
	}
	switch {
	case len(ids) == 0:
		return domain.Booking{}, fmt.Errorf("active booking not found for given details: %w", domain.ErrNotFound)
	case len(ids) > 1:
		return domain.Booking{}, fmt.Errorf("multiple bookings match; provide booking_id: %w", domain.ErrConflict)
	}
	return s.bookings.Get(ctx, ids[0])
}

// List runs the filtered, role-scoped booking search.
func (s *BookingService) List(ctx context.Context, q domain.BookingsQuery, actor domain.Identity) (domain.BookingsPage, error) {
	if actor.IsGuest() {
		return domain.BookingsPage{}, fmt.Errorf("login required: %w", domain.ErrForbidden)
	}

	page := q.Page.Clamp(20)
	sort := q.Sort
	if sort.Key == "" {
		sort = defaultBookingSort
	}
	status := q.Status
	switch status {
	case domain.FilterActive, domain.FilterCancelled, domain.FilterAll:
	default:
		status = domain.FilterActive
	}

	f := domain.BookingsFilter{
		PropertyID: q.PropertyID,
		User:       q.User,
		Status:     status,
		From:       q.From,
		To:         q.To,
		Sort:       sort,
		Offset:     page.Offset,
		Limit:      page.Limit + 1,
	}

	// explicit host / free-text filters resolve to a property allowlist
	var allow []string
	haveAllow := false
	if q.Host != "" {
		ids, err := s.properties.IDsByHost(ctx, q.Host)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		allow, haveAllow = ids, true
	}
	if q.Q != "" {
		ids, err := s.properties.IDsMatching(ctx, q.Q)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		if haveAllow {
			allow = intersect(allow, ids)
		} else {
			allow, haveAllow = ids, true
		}
	}

	// role-scoped visibility narrowing, applied after the explicit filters
	if !actor.IsAdmin() {
		if actor.IsHost() {
			if q.PropertyID != "" {
				prop, err := s.properties.Get(ctx, q.PropertyID)
				if err != nil || prop.Host != actor.User {
					// not their property: only their own bookings remain visible
					f.User = actor.User
				}
			} else {
				owned, err := s.properties.IDsByHost(ctx, actor.User)
				if err != nil {
					return domain.BookingsPage{}, err
				}
				if haveAllow {
					allow = intersect(allow, owned)
				} else {
					allow, haveAllow = owned, true
				}
			}
		} else {
			// plain users only ever see their own bookings
			if q.User != "" && q.User != actor.User {
				allow, haveAllow = nil, true
			}
			f.User = actor.User
		}
	}

	f.PropertyIDs = allow
	f.HasPropertyIDs = haveAllow

	rows, err := s.bookings.List(ctx, f)
	if err != nil {
		return domain.BookingsPage{}, err
	}

	pg := domain.NewPaging(page.Offset, page.Limit, len(rows), sort.String())
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
	}

	if q.IncludeProperty && len(rows) > 0 {
		ids := uniqueBy(rows, func(v domain.BookingView) string { return v.PropertyID })
		sums, err := s.properties.SummariesByIDs(ctx, ids)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		for i := range rows {
			if sum, ok := sums[rows[i].PropertyID]; ok {
				c := sum
				rows[i].Property = &c
			}
		}
	}
	if q.IncludeUser && len(rows) > 0 {
		emails := uniqueBy(rows, func(v domain.BookingView) string { return v.User })
		details, err := s.users.DetailsByEmails(ctx, emails)
		if err != nil {
			return domain.BookingsPage{}, err
		}
		for i := range rows {
			if d, ok := details[rows[i].User]; ok {
				c := d
				rows[i].UserDetails = &c
			}
		}
	}

	return domain.BookingsPage{Items: rows, Paging: pg}, nil
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func uniqueBy(rows []domain.BookingView, key func(domain.BookingView) string) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, r := range rows {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
