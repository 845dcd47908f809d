package mysql

const insertPropertySQL = `
INSERT INTO properties
  (id, title, price_per_night, location, host, features, rules)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
`

const updatePropertySQL = `
UPDATE properties
SET title           = ?,
    price_per_night = ?,
    location        = ?,
    host            = ?,
    features        = ?,
    rules           = ?
WHERE id = ?
`

const deletePropertySQL = `DELETE FROM properties WHERE id = ?`

const getPropertySQL = `
SELECT id, title, price_per_night, location, host, features, rules, modified
FROM properties
WHERE id = ?
`

const titleExistsSQL = `
SELECT EXISTS(SELECT 1 FROM properties WHERE title = ? AND id <> ?)
`

const idsByHostSQL = `SELECT id FROM properties WHERE host = ?`

// OR-match free text over the searchable property columns.
const idsMatchingSQL = `
SELECT id FROM properties
WHERE title LIKE ? OR location LIKE ? OR features LIKE ?
`

const listPropertiesBaseSQL = `
SELECT id, title, price_per_night, location, host, features, rules, modified
FROM properties
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, property_id, user_email, booking_date, payment_completed, status)
VALUES
  (?, ?, ?, ?, ?, ?)
`

const updateBookingSQL = `
UPDATE bookings
SET status        = ?,
    cancel_reason = ?,
    cancelled_by  = ?,
    cancelled_at  = ?
WHERE id = ?
`

const getBookingSQL = `
SELECT id, property_id, user_email, booking_date, payment_completed, status,
       cancel_reason, cancelled_by, cancelled_at, modified
FROM bookings
WHERE id = ?
`

const listBookingsBaseSQL = `
SELECT id, property_id, user_email, booking_date, payment_completed, status, modified
FROM bookings
`

const existsActiveSQL = `
SELECT EXISTS(
  SELECT 1 FROM bookings
  WHERE property_id = ? AND booking_date = ? AND status = 'Active' AND id <> ?
)
`

const activeDatesSQL = `
SELECT booking_date FROM bookings
WHERE property_id = ? AND status = 'Active' AND booking_date BETWEEN ? AND ?
ORDER BY booking_date ASC
`

const countByPropertySQL = `SELECT COUNT(*) FROM bookings WHERE property_id = ?`

const rolesOfSQL = `SELECT role FROM user_roles WHERE user_email = ? ORDER BY role`

const upsertUserSQL = `
INSERT INTO users (email, full_name, enabled)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  full_name = VALUES(full_name),
  enabled   = VALUES(enabled)
`

const grantRoleSQL = `
INSERT INTO user_roles (user_email, role)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE role = role
`
