package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cumbria_stays/internal/app"
	"cumbria_stays/internal/domain"
)

func newBookingFixture(t *testing.T) (*app.BookingService, *app.AvailabilityService, *fakeBookingRepo, *fakePropertyRepo) {
	t.Helper()
	props := newFakePropertyRepo(
		domain.Property{ID: "p1", Title: "Seaside Cottage", Location: "Whitehaven", Host: "host1@x", Features: "Sea view"},
		domain.Property{ID: "p2", Title: "Fell View", Location: "Keswick", Host: "host2@x", Features: "Hill view"},
	)
	bookings := newFakeBookingRepo()
	users := &fakeUserDir{details: map[string]domain.UserDetails{
		"guest1@x": {Email: "guest1@x", FullName: "Guest One"},
	}}
	avail := app.NewAvailabilityService(bookings, &fakeCache{}, time.Minute)
	svc := app.NewBookingService(bookings, props, users, avail)
	return svc, avail, bookings, props
}

var (
	admin  = domain.Identity{User: "admin@x", Roles: []string{domain.RoleAdmin}}
	host1  = domain.Identity{User: "host1@x", Roles: []string{domain.RoleHost}}
	host2  = domain.Identity{User: "host2@x", Roles: []string{domain.RoleHost}}
	guest1 = domain.Identity{User: "guest1@x"}
	guest2 = domain.Identity{User: "guest2@x"}
)

func TestCreateBooking_ThenDateUnavailable(t *testing.T) {
	svc, avail, _, _ := newBookingFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatalf("expected booking id")
	}

	free, err := avail.CheckAvailable(ctx, "p1", day("2025-09-01"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if free {
		t.Fatalf("expected date unavailable after booking")
	}

	_, err = svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest2)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on double booking, got %v", err)
	}
}

func TestCreateBooking_GuestAndValidation(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, domain.Guest); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for guest, got %v", err)
	}
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "01/09/2025"}, guest1); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad date, got %v", err)
	}
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "missing", Date: "2025-09-01"}, guest1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown property, got %v", err)
	}
}

func TestCreateBooking_Delegated(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	ctx := context.Background()

	// host booking on behalf for a property they do not own
	_, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p2", User: "guest1@x", Date: "2025-09-01"}, host1)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign property, got %v", err)
	}

	// same call on their own property succeeds
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", User: "guest1@x", Date: "2025-09-01"}, host1); err != nil {
		t.Fatalf("expected delegated booking on own property to succeed: %v", err)
	}

	// plain user may not book for someone else
	_, err = svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", User: "guest2@x", Date: "2025-09-02"}, guest1)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for plain delegate, got %v", err)
	}

	// admin may book for anyone on any property
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p2", User: "guest2@x", Date: "2025-09-01"}, admin); err != nil {
		t.Fatalf("admin delegate failed: %v", err)
	}
}

func TestCancelBooking_Idempotent(t *testing.T) {
	svc, _, repo, _ := newBookingFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id, Reason: "change of plans"}, guest1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.AlreadyCancelled {
		t.Fatalf("first cancel should not report already cancelled")
	}

	b1, _ := repo.Get(ctx, id)
	if b1.Status != domain.StatusCancelled || b1.CancelledAt == nil || b1.CancelledBy == nil || *b1.CancelledBy != "guest1@x" {
		t.Fatalf("unexpected cancelled booking: %+v", b1)
	}
	if b1.CancelReason == nil || *b1.CancelReason != "change of plans" {
		t.Fatalf("expected cancel reason recorded")
	}

	res2, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id}, guest1)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !res2.AlreadyCancelled {
		t.Fatalf("second cancel should report already cancelled")
	}
	b2, _ := repo.Get(ctx, id)
	if !b2.CancelledAt.Equal(*b1.CancelledAt) {
		t.Fatalf("second cancel must not change state")
	}

	// date is bookable again after cancellation
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest2); err != nil {
		t.Fatalf("rebooking cancelled date failed: %v", err)
	}
}

func TestCancelBooking_Authorization(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// a stranger may not cancel
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id}, guest2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	// host2 does not own p1
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id}, host2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign host, got %v", err)
	}
	// the owning host may
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id}, host1); err != nil {
		t.Fatalf("owning host cancel failed: %v", err)
	}
}

func TestCancelBooking_ByTriple(t *testing.T) {
	svc, _, repo, _ := newBookingFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1); err != nil {
		t.Fatalf("create: %v", err)
	}

	// missing locator pieces
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{PropertyID: "p1"}, guest1); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid without date, got %v", err)
	}

	// a plain user without an explicit user filter is pinned to themselves
	res, err := svc.Cancel(ctx, app.CancelBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1)
	if err != nil {
		t.Fatalf("triple cancel: %v", err)
	}
	b, _ := repo.Get(ctx, res.BookingID)
	if b.User != "guest1@x" || b.Status != domain.StatusCancelled {
		t.Fatalf("resolved wrong booking: %+v", b)
	}

	// nothing active left on that date
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelBooking_AmbiguousTriple(t *testing.T) {
	svc, _, repo, _ := newBookingFixture(t)
	ctx := context.Background()

	// two Active rows for the same date can only exist if written outside the
	// guarded path; the resolver must still refuse to guess between them
	repo.bookings["x1"] = domain.Booking{ID: "x1", PropertyID: "p1", User: "guest1@x", BookingDate: day("2025-09-01"), Status: domain.StatusActive}
	repo.bookings["x2"] = domain.Booking{ID: "x2", PropertyID: "p1", User: "guest2@x", BookingDate: day("2025-09-01"), Status: domain.StatusActive}

	_, err := svc.Cancel(ctx, app.CancelBookingInput{PropertyID: "p1", Date: "2025-09-01"}, admin)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for ambiguous match, got %v", err)
	}

	// narrowing by user resolves it
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{PropertyID: "p1", Date: "2025-09-01", User: "guest2@x"}, admin); err != nil {
		t.Fatalf("narrowed cancel failed: %v", err)
	}
}

func seedListBookings(t *testing.T, svc *app.BookingService) {
	t.Helper()
	ctx := context.Background()
	mk := func(prop, user, date string, actor domain.Identity) {
		t.Helper()
		if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: prop, User: user, Date: date}, actor); err != nil {
			t.Fatalf("seed booking %s/%s: %v", prop, date, err)
		}
	}
	mk("p1", "guest1@x", "2025-09-01", admin)
	mk("p1", "guest2@x", "2025-09-02", admin)
	mk("p2", "guest1@x", "2025-09-03", admin)
	mk("p2", "guest2@x", "2025-09-04", admin)
}

func TestListBookings_RoleScoping(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	seedListBookings(t, svc)
	ctx := context.Background()

	// plain user only ever sees their own, whatever they ask for
	page, err := svc.List(ctx, domain.BookingsQuery{}, guest1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 own bookings, got %d", len(page.Items))
	}
	for _, it := range page.Items {
		if it.User != "guest1@x" {
			t.Fatalf("leaked foreign booking: %+v", it)
		}
	}

	// asking for someone else's bookings yields nothing
	page, err = svc.List(ctx, domain.BookingsQuery{User: "guest2@x"}, guest1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(page.Items))
	}

	// host without a property filter sees bookings for their properties only
	page, err = svc.List(ctx, domain.BookingsQuery{}, host1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 bookings on host1 properties, got %d", len(page.Items))
	}
	for _, it := range page.Items {
		if it.PropertyID != "p1" {
			t.Fatalf("host1 saw foreign property booking: %+v", it)
		}
	}

	// host filtering on a property they do not own is narrowed to their own bookings
	page, err = svc.List(ctx, domain.BookingsQuery{PropertyID: "p2"}, host1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range page.Items {
		if it.User != "host1@x" {
			t.Fatalf("expected only host1's own bookings, got %+v", it)
		}
	}

	// admin is unrestricted
	page, err = svc.List(ctx, domain.BookingsQuery{}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 4 {
		t.Fatalf("expected all 4 bookings for admin, got %d", len(page.Items))
	}
}

func TestListBookings_Pagination(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	seedListBookings(t, svc)
	ctx := context.Background()

	page, err := svc.List(ctx, domain.BookingsQuery{Page: domain.PageRequest{Limit: 3}}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if !page.Paging.HasMore || page.Paging.NextOffset == nil || *page.Paging.NextOffset != 3 {
		t.Fatalf("unexpected paging: %+v", page.Paging)
	}

	page, err = svc.List(ctx, domain.BookingsQuery{Page: domain.PageRequest{Limit: 3, Offset: 3}}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Paging.HasMore {
		t.Fatalf("expected final page of 1, got %d items, paging %+v", len(page.Items), page.Paging)
	}

	// default sort is booking_date desc
	page, _ = svc.List(ctx, domain.BookingsQuery{}, admin)
	if page.Items[0].BookingDate != "2025-09-04" {
		t.Fatalf("expected newest date first, got %s", page.Items[0].BookingDate)
	}
	if page.Paging.OrderBy != "booking_date desc" {
		t.Fatalf("unexpected order_by %q", page.Paging.OrderBy)
	}
}

func TestListBookings_FiltersAndEnrichment(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	seedListBookings(t, svc)
	ctx := context.Background()

	// host filter resolves to that host's properties
	page, err := svc.List(ctx, domain.BookingsQuery{Host: "host2@x"}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range page.Items {
		if it.PropertyID != "p2" {
			t.Fatalf("host filter leaked: %+v", it)
		}
	}

	// free text search intersected with host filter
	page, err = svc.List(ctx, domain.BookingsQuery{Host: "host2@x", Q: "Seaside"}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected empty intersection, got %d", len(page.Items))
	}

	// date range
	from, to := day("2025-09-02"), day("2025-09-03")
	page, err = svc.List(ctx, domain.BookingsQuery{From: &from, To: &to}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items in range, got %d", len(page.Items))
	}

	// enrichment
	page, err = svc.List(ctx, domain.BookingsQuery{
		User:            "guest1@x",
		IncludeProperty: true,
		IncludeUser:     true,
	}, admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) == 0 {
		t.Fatalf("expected items")
	}
	it := page.Items[0]
	if it.Property == nil || it.Property.Title == "" {
		t.Fatalf("expected property enrichment, got %+v", it)
	}
	if it.UserDetails == nil || it.UserDetails.FullName != "Guest One" {
		t.Fatalf("expected user enrichment, got %+v", it)
	}
}

func TestListBookings_StatusFilter(t *testing.T) {
	svc, _, _, _ := newBookingFixture(t)
	ctx := context.Background()

	id, _ := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-01"}, guest1)
	if _, err := svc.Create(ctx, app.CreateBookingInput{PropertyID: "p1", Date: "2025-09-02"}, guest1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(ctx, app.CancelBookingInput{BookingID: id}, guest1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	active, _ := svc.List(ctx, domain.BookingsQuery{}, guest1)
	if len(active.Items) != 1 || active.Items[0].Status != domain.StatusActive {
		t.Fatalf("default filter should show only Active, got %+v", active.Items)
	}

	cancelled, _ := svc.List(ctx, domain.BookingsQuery{Status: domain.FilterCancelled}, guest1)
	if len(cancelled.Items) != 1 || cancelled.Items[0].Status != domain.StatusCancelled {
		t.Fatalf("expected one Cancelled, got %+v", cancelled.Items)
	}

	all, _ := svc.List(ctx, domain.BookingsQuery{Status: domain.FilterAll}, guest1)
	if len(all.Items) != 2 {
		t.Fatalf("expected both statuses, got %d", len(all.Items))
	}
}
