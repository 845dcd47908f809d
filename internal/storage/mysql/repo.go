package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"cumbria_stays/internal/domain"
)

const (
	mysqlErrDupEntry      = 1062
	mysqlErrRowReferenced = 1451
)

// wrapWriteErr translates MySQL constraint violations into domain error kinds
// so services and handlers never see driver types.
func wrapWriteErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDupEntry:
			return fmt.Errorf("duplicate record: %w", domain.ErrConflict)
		case mysqlErrRowReferenced:
			return fmt.Errorf("record is referenced: %w", domain.ErrConflict)
		}
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ---------- properties ----------

type PropertyRepo struct{ db *sql.DB }

func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{db: db} }

func (r *PropertyRepo) Insert(ctx context.Context, p domain.Property) error {
	_, err := r.db.ExecContext(ctx, insertPropertySQL,
		p.ID, p.Title, p.PricePerNight, p.Location, p.Host, p.Features, p.Rules)
	return wrapWriteErr(err)
}

func (r *PropertyRepo) Update(ctx context.Context, p domain.Property) error {
	// RowsAffected is 0 both for a missing row and for a no-change save,
	// so existence is checked by the caller via Get.
	_, err := r.db.ExecContext(ctx, updatePropertySQL,
		p.Title, p.PricePerNight, p.Location, p.Host, p.Features, p.Rules, p.ID)
	return wrapWriteErr(err)
}

func (r *PropertyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deletePropertySQL, id)
	if err != nil {
		return wrapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PropertyRepo) Get(ctx context.Context, id string) (domain.Property, error) {
	row := r.db.QueryRowContext(ctx, getPropertySQL, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return domain.Property{}, fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanProperty(row rowScanner) (domain.Property, error) {
	var p domain.Property
	var features, rules sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.PricePerNight, &p.Location, &p.Host,
		&features, &rules, &p.Modified)
	p.Features = features.String
	p.Rules = rules.String
	return p, err
}

func (r *PropertyRepo) List(ctx context.Context, q domain.PropertiesQuery) (domain.PropertiesPage, error) {
	var where []string
	var args []any

	if q.Host != "" {
		where = append(where, "host = ?")
		args = append(args, q.Host)
	}
	if q.Location != "" {
		where = append(where, "location LIKE ?")
		args = append(args, "%"+q.Location+"%")
	}
	if q.MinPrice != nil {
		where = append(where, "price_per_night >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		where = append(where, "price_per_night <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.Q != "" {
		like := "%" + q.Q + "%"
		where = append(where, "(title LIKE ? OR location LIKE ? OR features LIKE ?)")
		args = append(args, like, like, like)
	}

	sqlStr := listPropertiesBaseSQL
	if len(where) > 0 {
		sqlStr += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	// sort key comes from the service-side whitelist, never from raw input
	sqlStr += "ORDER BY " + q.Sort.String() + "\nLIMIT ? OFFSET ?"
	args = append(args, q.Page.Limit+1, q.Page.Offset)

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return domain.PropertiesPage{}, err
	}
	defer rows.Close()

	var items []domain.PropertyView
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return domain.PropertiesPage{}, err
		}
		items = append(items, domain.PropertyView{
			ID:            p.ID,
			Title:         p.Title,
			PricePerNight: p.PricePerNight,
			Location:      p.Location,
			Host:          p.Host,
			Features:      p.Features,
			Rules:         p.Rules,
			Modified:      p.Modified,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.PropertiesPage{}, err
	}

	pg := domain.NewPaging(q.Page.Offset, q.Page.Limit, len(items), q.Sort.String())
	if len(items) > q.Page.Limit {
		items = items[:q.Page.Limit]
	}
	return domain.PropertiesPage{Items: items, Paging: pg}, nil
}

func (r *PropertyRepo) TitleExists(ctx context.Context, title, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, titleExistsSQL, title, excludeID).Scan(&exists)
	return exists, err
}

func (r *PropertyRepo) IDsByHost(ctx context.Context, host string) ([]string, error) {
	return r.queryIDs(ctx, idsByHostSQL, host)
}

func (r *PropertyRepo) IDsMatching(ctx context.Context, q string) ([]string, error) {
	like := "%" + q + "%"
	return r.queryIDs(ctx, idsMatchingSQL, like, like, like)
}

func (r *PropertyRepo) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PropertyRepo) SummariesByIDs(ctx context.Context, ids []string) (map[string]domain.PropertySummary, error) {
	if len(ids) == 0 {
		return map[string]domain.PropertySummary{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, location, host, price_per_night FROM properties WHERE id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.PropertySummary, len(ids))
	for rows.Next() {
		var s domain.PropertySummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Location, &s.Host, &s.PricePerNight); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// ---------- bookings ----------

type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) Insert(ctx context.Context, b domain.Booking) error {
	_, err := r.db.ExecContext(ctx, insertBookingSQL,
		b.ID, b.PropertyID, b.User, b.BookingDate.Format(domain.DateLayout),
		b.PaymentCompleted, string(b.Status))
	return wrapWriteErr(err)
}

func (r *BookingRepo) Update(ctx context.Context, b domain.Booking) error {
	var reason, by any
	var at any
	if b.CancelReason != nil {
		reason = *b.CancelReason
	}
	if b.CancelledBy != nil {
		by = *b.CancelledBy
	}
	if b.CancelledAt != nil {
		at = *b.CancelledAt
	}
	_, err := r.db.ExecContext(ctx, updateBookingSQL,
		string(b.Status), reason, by, at, b.ID)
	return wrapWriteErr(err)
}

func (r *BookingRepo) Get(ctx context.Context, id string) (domain.Booking, error) {
	row := r.db.QueryRowContext(ctx, getBookingSQL, id)

	var b domain.Booking
	var status string
	var reason, by sql.NullString
	var at sql.NullTime
	err := row.Scan(&b.ID, &b.PropertyID, &b.User, &b.BookingDate, &b.PaymentCompleted,
		&status, &reason, &by, &at, &b.Modified)
	if err == sql.ErrNoRows {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingStatus(status)
	if reason.Valid {
		b.CancelReason = &reason.String
	}
	if by.Valid {
		b.CancelledBy = &by.String
	}
	if at.Valid {
		b.CancelledAt = &at.Time
	}
	return b, nil
}

func (r *BookingRepo) List(ctx context.Context, f domain.BookingsFilter) ([]domain.BookingView, error) {
	if f.HasPropertyIDs && len(f.PropertyIDs) == 0 {
		return nil, nil
	}

	var where []string
	var args []any

	if f.Status != domain.FilterAll {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, f.PropertyID)
	}
	if f.HasPropertyIDs {
		where = append(where, "property_id IN ("+placeholders(len(f.PropertyIDs))+")")
		for _, id := range f.PropertyIDs {
			args = append(args, id)
		}
	}
	if f.User != "" {
		where = append(where, "user_email = ?")
		args = append(args, f.User)
	}
	if f.From != nil {
		where = append(where, "booking_date >= ?")
		args = append(args, f.From.Format(domain.DateLayout))
	}
	if f.To != nil {
		where = append(where, "booking_date <= ?")
		args = append(args, f.To.Format(domain.DateLayout))
	}

	sqlStr := listBookingsBaseSQL
	if len(where) > 0 {
		sqlStr += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	sqlStr += "ORDER BY " + f.Sort.String() + "\nLIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookingView
	for rows.Next() {
		var v domain.BookingView
		var d time.Time
		var status string
		if err := rows.Scan(&v.ID, &v.PropertyID, &v.User, &d, &v.PaymentCompleted, &status, &v.Modified); err != nil {
			return nil, err
		}
		v.BookingDate = d.Format(domain.DateLayout)
		v.Status = domain.BookingStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *BookingRepo) ExistsActive(ctx context.Context, propertyID string, date time.Time, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, existsActiveSQL,
		propertyID, date.Format(domain.DateLayout), excludeID).Scan(&exists)
	return exists, err
}

func (r *BookingRepo) ActiveDates(ctx context.Context, propertyID string, from, to time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, activeDatesSQL,
		propertyID, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	var last string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		s := d.Format(domain.DateLayout)
		// one Active booking per date by the unique key; dedup anyway since
		// the contract does not assume it
		if s == last {
			continue
		}
		out = append(out, s)
		last = s
	}
	return out, rows.Err()
}

func (r *BookingRepo) FindActiveIDs(ctx context.Context, propertyID string, date time.Time, user string) ([]string, error) {
	sqlStr := "SELECT id FROM bookings WHERE property_id = ? AND booking_date = ? AND status = 'Active'"
	args := []any{propertyID, date.Format(domain.DateLayout)}
	if user != "" {
		sqlStr += " AND user_email = ?"
		args = append(args, user)
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *BookingRepo) CountByProperty(ctx context.Context, propertyID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countByPropertySQL, propertyID).Scan(&n)
	return n, err
}

// ---------- users ----------

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) RolesOf(ctx context.Context, user string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, rolesOfSQL, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *UserRepo) DetailsByEmails(ctx context.Context, emails []string) (map[string]domain.UserDetails, error) {
	if len(emails) == 0 {
		return map[string]domain.UserDetails{}, nil
	}
	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT email, full_name FROM users WHERE email IN ("+placeholders(len(emails))+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.UserDetails, len(emails))
	for rows.Next() {
		var u domain.UserDetails
		if err := rows.Scan(&u.Email, &u.FullName); err != nil {
			return nil, err
		}
		out[u.Email] = u
	}
	return out, rows.Err()
}

// UpsertUser and GrantRole are write paths used by the seeder.
func (r *UserRepo) UpsertUser(ctx context.Context, email, fullName string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, upsertUserSQL, email, fullName, enabled)
	return err
}

func (r *UserRepo) GrantRole(ctx context.Context, email, role string) error {
	_, err := r.db.ExecContext(ctx, grantRoleSQL, email, role)
	return err
}
