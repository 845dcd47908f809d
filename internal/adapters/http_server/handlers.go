package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"cumbria_stays/internal/adapters/observability"
	"cumbria_stays/internal/app"
	"cumbria_stays/internal/domain"
)

type Handlers struct {
	Properties *app.PropertyService
	Bookings   *app.BookingService
	Avail      *app.AvailabilityService
	External   domain.AvailabilityClient

	validate *validator.Validate
}

func (s *Server) MountHandlers(h *Handlers) {
	h.validate = validator.New()

	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/properties", h.listProperties)
		r.Post("/properties", h.createProperty)
		r.Get("/properties/{id}", h.getProperty)
		r.Patch("/properties/{id}", h.updateProperty)
		r.Delete("/properties/{id}", h.deleteProperty)
		r.Get("/properties/{id}/availability", h.checkAvailability)
		r.Get("/properties/{id}/unavailable-dates", h.unavailableDates)

		r.Get("/bookings", h.listBookings)
		r.Post("/bookings", h.createBooking)
		r.Post("/bookings/cancel", h.cancelBooking)

		r.Get("/external-availability", h.externalAvailability)
	})
}

// ---- uniform envelope ----

type envelope struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Item    any            `json:"item,omitempty"`
	Items   any            `json:"items,omitempty"`
	Paging  *domain.Paging `json:"paging,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{OK: false, Message: msg})
}

// writeServiceErr classifies a service error into the envelope's status.
func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		writeError(w, http.StatusBadRequest, userMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, userMessage(err))
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, userMessage(err))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, userMessage(err))
	default:
		log.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// userMessage strips the wrapped sentinel suffix ("...: conflict") so the
// client sees the human part only.
func userMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

// ---- properties ----

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	q := domain.PropertiesQuery{
		Q:        qp.Get("q"),
		Host:     qp.Get("host"),
		Location: qp.Get("location"),
		MinPrice: floatParam(qp.Get("min_price")),
		MaxPrice: floatParam(qp.Get("max_price")),
		Sort:     app.ParsePropertySort(qp.Get("order_by")),
		Page:     pageParams(qp.Get("limit"), qp.Get("offset")),
	}
	page, err := h.Properties.List(r.Context(), q)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Items: page.Items, Paging: &page.Paging})
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	pv, err := h.Properties.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Item: pv})
}

type createPropertyReq struct {
	Title         string  `json:"title" validate:"required"`
	PricePerNight float64 `json:"price_per_night" validate:"gte=0"`
	Location      string  `json:"location" validate:"required"`
	Features      string  `json:"features"`
	Rules         string  `json:"rules"`
	Host          string  `json:"host" validate:"omitempty,email"`
}

func (h *Handlers) createProperty(w http.ResponseWriter, r *http.Request) {
	var req createPropertyReq
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Properties.Create(r.Context(), app.CreatePropertyInput{
		Title:         req.Title,
		PricePerNight: req.PricePerNight,
		Location:      req.Location,
		Features:      req.Features,
		Rules:         req.Rules,
		Host:          req.Host,
	}, requester(r.Context()))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{OK: true, Message: "Property created.", Item: map[string]string{"id": id}})
}

type updatePropertyReq struct {
	Title         *string  `json:"title"`
	PricePerNight *float64 `json:"price_per_night" validate:"omitempty,gte=0"`
	Location      *string  `json:"location"`
	Features      *string  `json:"features"`
	Rules         *string  `json:"rules"`
	Host          *string  `json:"host" validate:"omitempty,email"`
}

func (h *Handlers) updateProperty(w http.ResponseWriter, r *http.Request) {
	var req updatePropertyReq
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Properties.Update(r.Context(), chi.URLParam(r, "id"), app.UpdatePropertyInput{
		Title:         req.Title,
		PricePerNight: req.PricePerNight,
		Location:      req.Location,
		Features:      req.Features,
		Rules:         req.Rules,
		Host:          req.Host,
	}, requester(r.Context()))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Message: "Property updated."})
}

func (h *Handlers) deleteProperty(w http.ResponseWriter, r *http.Request) {
	if err := h.Properties.Delete(r.Context(), chi.URLParam(r, "id"), requester(r.Context())); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Message: "Property deleted."})
}

// ---- availability ----

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	d, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	available, err := h.Avail.CheckAvailable(r.Context(), id, d)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Item: map[string]any{
		"property_id": id,
		"date":        d.Format(domain.DateLayout),
		"available":   available,
	}})
}

func (h *Handlers) unavailableDates(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	from, err := domain.ParseDate(qp.Get("from"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	to, err := domain.ParseDate(qp.Get("to"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	dates, err := h.Avail.UnavailableDates(r.Context(), id, from, to)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Item: map[string]any{
		"property_id": id,
		"dates":       dates,
	}})
}

// ---- bookings ----

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	q := domain.BookingsQuery{
		PropertyID:      qp.Get("property"),
		User:            qp.Get("user"),
		Host:            qp.Get("host"),
		Q:               qp.Get("q"),
		Status:          statusParam(qp.Get("status")),
		Sort:            app.ParseBookingSort(qp.Get("order_by")),
		Page:            pageParams(qp.Get("limit"), qp.Get("offset")),
		IncludeProperty: boolParam(qp.Get("include_property")),
		IncludeUser:     boolParam(qp.Get("include_user")),
	}
	if v := qp.Get("from"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		q.From = &d
	}
	if v := qp.Get("to"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		q.To = &d
	}

	page, err := h.Bookings.List(r.Context(), q, requester(r.Context()))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	items := page.Items
	if items == nil {
		items = []domain.BookingView{}
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Items: items, Paging: &page.Paging})
}

type createBookingReq struct {
	PropertyID       string `json:"property_id" validate:"required"`
	User             string `json:"user" validate:"omitempty,email"`
	Date             string `json:"date" validate:"required"`
	PaymentCompleted bool   `json:"payment_completed"`
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingReq
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Bookings.Create(r.Context(), app.CreateBookingInput{
		PropertyID:       req.PropertyID,
		User:             req.User,
		Date:             req.Date,
		PaymentCompleted: req.PaymentCompleted,
	}, requester(r.Context()))
	if err != nil {
		observability.ObserveBooking("create", outcomeOf(err))
		writeServiceErr(w, err)
		return
	}
	observability.ObserveBooking("create", "ok")
	writeJSON(w, http.StatusCreated, envelope{OK: true, Message: "Booking confirmed.", Item: map[string]string{"id": id}})
}

type cancelBookingReq struct {
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	Date       string `json:"date"`
	User       string `json:"user" validate:"omitempty,email"`
	Reason     string `json:"reason"`
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingReq
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Bookings.Cancel(r.Context(), app.CancelBookingInput{
		BookingID:  req.BookingID,
		PropertyID: req.PropertyID,
		Date:       req.Date,
		User:       req.User,
		Reason:     req.Reason,
	}, requester(r.Context()))
	if err != nil {
		observability.ObserveBooking("cancel", outcomeOf(err))
		writeServiceErr(w, err)
		return
	}
	observability.ObserveBooking("cancel", "ok")
	msg := "Booking cancelled."
	if res.AlreadyCancelled {
		msg = "Already cancelled."
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Message: msg, Item: map[string]string{"id": res.BookingID}})
}

// ---- external availability proxy ----

func (h *Handlers) externalAvailability(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	out, err := h.External.FetchAvailability(r.Context(),
		qp.Get("property_id"), qp.Get("from_date"), qp.Get("to_date"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true, Item: out})
}

// ---- param helpers ----

func pageParams(limit, offset string) domain.PageRequest {
	var p domain.PageRequest
	if n, err := strconv.Atoi(limit); err == nil {
		p.Limit = n
	}
	if n, err := strconv.Atoi(offset); err == nil {
		p.Offset = n
	}
	return p
}

func floatParam(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func boolParam(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func statusParam(s string) domain.StatusFilter {
	switch strings.ToLower(s) {
	case "cancelled":
		return domain.FilterCancelled
	case "all", "any", "*":
		return domain.FilterAll
	default:
		return domain.FilterActive
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrForbidden):
		return "denied"
	default:
		return "error"
	}
}
