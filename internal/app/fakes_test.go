package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cumbria_stays/internal/domain"
)

// ---- in-memory fakes shared by the service tests ----

type fakePropertyRepo struct {
	props map[string]domain.Property
	page  domain.PropertiesPage // canned result for List
	lastQ domain.PropertiesQuery
}

func newFakePropertyRepo(ps ...domain.Property) *fakePropertyRepo {
	r := &fakePropertyRepo{props: map[string]domain.Property{}}
	for _, p := range ps {
		r.props[p.ID] = p
	}
	return r
}

func (r *fakePropertyRepo) Insert(ctx context.Context, p domain.Property) error {
	r.props[p.ID] = p
	return nil
}

func (r *fakePropertyRepo) Update(ctx context.Context, p domain.Property) error {
	r.props[p.ID] = p
	return nil
}

func (r *fakePropertyRepo) Delete(ctx context.Context, id string) error {
	delete(r.props, id)
	return nil
}

func (r *fakePropertyRepo) Get(ctx context.Context, id string) (domain.Property, error) {
	p, ok := r.props[id]
	if !ok {
		return domain.Property{}, fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (r *fakePropertyRepo) List(ctx context.Context, q domain.PropertiesQuery) (domain.PropertiesPage, error) {
	r.lastQ = q
	return r.page, nil
}

func (r *fakePropertyRepo) TitleExists(ctx context.Context, title, excludeID string) (bool, error) {
	for _, p := range r.props {
		if p.Title == title && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePropertyRepo) IDsByHost(ctx context.Context, host string) ([]string, error) {
	var out []string
	for _, p := range r.props {
		if p.Host == host {
			out = append(out, p.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakePropertyRepo) IDsMatching(ctx context.Context, q string) ([]string, error) {
	var out []string
	for _, p := range r.props {
		if contains(p.Title, q) || contains(p.Location, q) || contains(p.Features, q) {
			out = append(out, p.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakePropertyRepo) SummariesByIDs(ctx context.Context, ids []string) (map[string]domain.PropertySummary, error) {
	out := map[string]domain.PropertySummary{}
	for _, id := range ids {
		if p, ok := r.props[id]; ok {
			out[id] = domain.PropertySummary{
				ID: p.ID, Title: p.Title, Location: p.Location,
				Host: p.Host, PricePerNight: p.PricePerNight,
			}
		}
	}
	return out, nil
}

type fakeBookingRepo struct {
	bookings map[string]domain.Booking
}

func newFakeBookingRepo(bs ...domain.Booking) *fakeBookingRepo {
	r := &fakeBookingRepo{bookings: map[string]domain.Booking{}}
	for _, b := range bs {
		r.bookings[b.ID] = b
	}
	return r
}

func (r *fakeBookingRepo) Insert(ctx context.Context, b domain.Booking) error {
	if b.Status == domain.StatusActive {
		// mirrors the store's unique (property, active date) key
		if ok, _ := r.ExistsActive(ctx, b.PropertyID, b.BookingDate, b.ID); ok {
			return fmt.Errorf("duplicate record: %w", domain.ErrConflict)
		}
	}
	r.bookings[b.ID] = b
	return nil
}

func (r *fakeBookingRepo) Update(ctx context.Context, b domain.Booking) error {
	r.bookings[b.ID] = b
	return nil
}

func (r *fakeBookingRepo) Get(ctx context.Context, id string) (domain.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (r *fakeBookingRepo) List(ctx context.Context, f domain.BookingsFilter) ([]domain.BookingView, error) {
	if f.HasPropertyIDs && len(f.PropertyIDs) == 0 {
		return nil, nil
	}
	allowed := map[string]struct{}{}
	for _, id := range f.PropertyIDs {
		allowed[id] = struct{}{}
	}

	var matched []domain.Booking
	for _, b := range r.bookings {
		if f.Status != domain.FilterAll && b.Status != domain.BookingStatus(f.Status) {
			continue
		}
		if f.PropertyID != "" && b.PropertyID != f.PropertyID {
			continue
		}
		if f.HasPropertyIDs {
			if _, ok := allowed[b.PropertyID]; !ok {
				continue
			}
		}
		if f.User != "" && b.User != f.User {
			continue
		}
		if f.From != nil && b.BookingDate.Before(*f.From) {
			continue
		}
		if f.To != nil && b.BookingDate.After(*f.To) {
			continue
		}
		matched = append(matched, b)
	}

	sort.Slice(matched, func(i, j int) bool {
		less := matched[i].BookingDate.Before(matched[j].BookingDate)
		if matched[i].BookingDate.Equal(matched[j].BookingDate) {
			less = matched[i].ID < matched[j].ID
		}
		if f.Sort.Desc {
			return !less
		}
		return less
	})

	if f.Offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[f.Offset:]
	}
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]domain.BookingView, 0, len(matched))
	for _, b := range matched {
		out = append(out, domain.BookingView{
			ID:               b.ID,
			PropertyID:       b.PropertyID,
			User:             b.User,
			BookingDate:      b.BookingDate.Format(domain.DateLayout),
			PaymentCompleted: b.PaymentCompleted,
			Status:           b.Status,
			Modified:         b.Modified,
		})
	}
	return out, nil
}

func (r *fakeBookingRepo) ExistsActive(ctx context.Context, propertyID string, date time.Time, excludeID string) (bool, error) {
	for _, b := range r.bookings {
		if b.ID != excludeID && b.PropertyID == propertyID &&
			b.Status == domain.StatusActive && sameDay(b.BookingDate, date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBookingRepo) ActiveDates(ctx context.Context, propertyID string, from, to time.Time) ([]string, error) {
	seen := map[string]struct{}{}
	for _, b := range r.bookings {
		if b.PropertyID != propertyID || b.Status != domain.StatusActive {
			continue
		}
		if b.BookingDate.Before(from) || b.BookingDate.After(to) {
			continue
		}
		seen[b.BookingDate.Format(domain.DateLayout)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeBookingRepo) FindActiveIDs(ctx context.Context, propertyID string, date time.Time, user string) ([]string, error) {
	var out []string
	for _, b := range r.bookings {
		if b.PropertyID != propertyID || b.Status != domain.StatusActive || !sameDay(b.BookingDate, date) {
			continue
		}
		if user != "" && b.User != user {
			continue
		}
		out = append(out, b.ID)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeBookingRepo) CountByProperty(ctx context.Context, propertyID string) (int, error) {
	n := 0
	for _, b := range r.bookings {
		if b.PropertyID == propertyID {
			n++
		}
	}
	return n, nil
}

type fakeUserDir struct {
	roles   map[string][]string
	details map[string]domain.UserDetails
}

func (d *fakeUserDir) RolesOf(ctx context.Context, user string) ([]string, error) {
	return d.roles[user], nil
}

func (d *fakeUserDir) DetailsByEmails(ctx context.Context, emails []string) (map[string]domain.UserDetails, error) {
	out := map[string]domain.UserDetails{}
	for _, e := range emails {
		if u, ok := d.details[e]; ok {
			out[e] = u
		}
	}
	return out, nil
}

type fakeCache struct {
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- tiny helpers ----

func contains(s, sub string) bool {
	return sub != "" && strings.Contains(s, sub)
}

func sameDay(a, b time.Time) bool {
	return a.Format(domain.DateLayout) == b.Format(domain.DateLayout)
}

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}
