package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cumbria_stays/internal/domain"
)

var propertySortKeys = map[string]string{
	"price":    "price_per_night",
	"title":    "title",
	"location": "location",
	"modified": "modified",
	"name":     "id",
}

var defaultPropertySort = domain.SortSpec{Key: "modified", Desc: true}

// ParsePropertySort whitelists a raw order_by value for property listings.
func ParsePropertySort(raw string) domain.SortSpec {
	return domain.ParseSort(raw, propertySortKeys, defaultPropertySort)
}

type PropertyService struct {
	properties domain.PropertyRepository
	bookings   domain.BookingRepository
	users      domain.UserDirectory
	cache      domain.Cache
	cacheTTL   time.Duration

	id func() string
}

func NewPropertyService(p domain.PropertyRepository, b domain.BookingRepository, u domain.UserDirectory, c domain.Cache, ttl time.Duration) *PropertyService {
	return &PropertyService{
		properties: p,
		bookings:   b,
		users:      u,
		cache:      c,
		cacheTTL:   ttl,
		id:         uuid.NewString,
	}
}

func propertyKey(id string) string { return "property:" + id }

// List is the public paginated property search.
func (s *PropertyService) List(ctx context.Context, q domain.PropertiesQuery) (domain.PropertiesPage, error) {
	q.Page = q.Page.Clamp(20)
	if q.Sort.Key == "" {
		q.Sort = defaultPropertySort
	}
	return s.properties.List(ctx, q)
}

// Get returns one property view with the host's display name, cache-aside.
func (s *PropertyService) Get(ctx context.Context, id string) (domain.PropertyView, error) {
	key := propertyKey(id)
	var pv domain.PropertyView
	if ok, _ := s.cache.Get(ctx, key, &pv); ok {
		return pv, nil
	}

	p, err := s.properties.Get(ctx, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	pv = domain.PropertyView{
		ID:            p.ID,
		Title:         p.Title,
		PricePerNight: p.PricePerNight,
		Location:      p.Location,
		Host:          p.Host,
		Features:      p.Features,
		Rules:         p.Rules,
		Modified:      p.Modified,
	}
	if details, err := s.users.DetailsByEmails(ctx, []string{p.Host}); err == nil {
		if d, ok := details[p.Host]; ok && d.FullName != "" {
			pv.HostFullName = &d.FullName
		}
	}
	_ = s.cache.Set(ctx, key, pv, int(s.cacheTTL.Seconds()))
	return pv, nil
}

type CreatePropertyInput struct {
	Title         string
	PricePerNight float64
	Location      string
	Features      string
	Rules         string
	Host          string // only honored for admins
}

func (s *PropertyService) Create(ctx context.Context, in CreatePropertyInput, actor domain.Identity) (string, error) {
	if actor.IsGuest() {
		return "", fmt.Errorf("login required: %w", domain.ErrForbidden)
	}
	if !Authorize(ActionCreateProperty, actor, "") {
		return "", fmt.Errorf("host or admin role required: %w", domain.ErrForbidden)
	}

	title := strings.TrimSpace(in.Title)
	location := strings.TrimSpace(in.Location)
	if title == "" || location == "" {
		return "", fmt.Errorf("title and location are required: %w", domain.ErrInvalid)
	}
	if in.PricePerNight < 0 {
		return "", fmt.Errorf("price per night must not be negative: %w", domain.ErrInvalid)
	}

	host := actor.User
	if in.Host != "" && Authorize(ActionSetPropertyHost, actor, "") {
		host = in.Host
	}

	if taken, err := s.properties.TitleExists(ctx, title, ""); err != nil {
		return "", err
	} else if taken {
		return "", fmt.Errorf("property with the title %q already exists: %w", title, domain.ErrConflict)
	}

	p := domain.Property{
		ID:            s.id(),
		Title:         title,
		PricePerNight: in.PricePerNight,
		Location:      location,
		Host:          host,
		Features:      strings.TrimSpace(in.Features),
		Rules:         strings.TrimSpace(in.Rules),
	}
	if err := s.properties.Insert(ctx, p); err != nil {
		return "", err
	}
	log.Info().Str("property", p.ID).Str("host", host).Msg("property created")
	return p.ID, nil
}

type UpdatePropertyInput struct {
	Title         *string
	PricePerNight *float64
	Location      *string
	Features      *string
	Rules         *string
	Host          *string // only honored for admins
}

func (s *PropertyService) Update(ctx context.Context, id string, in UpdatePropertyInput, actor domain.Identity) error {
	if actor.IsGuest() {
		return fmt.Errorf("login required: %w", domain.ErrForbidden)
	}

	p, err := s.properties.Get(ctx, id)
	if err != nil {
		return err
	}
	if !Authorize(ActionManageProperty, actor, p.Host) {
		return fmt.Errorf("you can only edit properties you host: %w", domain.ErrForbidden)
	}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return fmt.Errorf("title must not be empty: %w", domain.ErrInvalid)
		}
		if t != p.Title {
			if taken, err := s.properties.TitleExists(ctx, t, p.ID); err != nil {
				return err
			} else if taken {
				return fmt.Errorf("property with the title %q already exists: %w", t, domain.ErrConflict)
			}
		}
		p.Title = t
	}
	if in.PricePerNight != nil {
		if *in.PricePerNight < 0 {
			return fmt.Errorf("price per night must not be negative: %w", domain.ErrInvalid)
		}
		p.PricePerNight = *in.PricePerNight
	}
	if in.Location != nil {
		p.Location = strings.TrimSpace(*in.Location)
	}
	if in.Features != nil {
		p.Features = strings.TrimSpace(*in.Features)
	}
	if in.Rules != nil {
		p.Rules = strings.TrimSpace(*in.Rules)
	}
	if in.Host != nil && *in.Host != "" && Authorize(ActionSetPropertyHost, actor, "") {
		p.Host = *in.Host
	}

	if err := s.properties.Update(ctx, p); err != nil {
		return err
	}
	_ = s.cache.Del(ctx, propertyKey(p.ID))
	return nil
}

func (s *PropertyService) Delete(ctx context.Context, id string, actor domain.Identity) error {
	if actor.IsGuest() {
		return fmt.Errorf("login required: %w", domain.ErrForbidden)
	}

	p, err := s.properties.Get(ctx, id)
	if err != nil {
		return err
	}
	if !Authorize(ActionManageProperty, actor, p.Host) {
		return fmt.Errorf("you can only delete properties you host: %w", domain.ErrForbidden)
	}

	n, err := s.bookings.CountByProperty(ctx, p.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("cannot delete: %d booking(s) reference this property: %w", n, domain.ErrConflict)
	}

	if err := s.properties.Delete(ctx, p.ID); err != nil {
		return err
	}
	_ = s.cache.Del(ctx, propertyKey(p.ID))
	log.Info().Str("property", p.ID).Str("by", actor.User).Msg("property deleted")
	return nil
}
