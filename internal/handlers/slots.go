package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/courtline/internal/cache"
	"github.com/md-rashed-zaman/courtline/internal/model"
	"github.com/md-rashed-zaman/courtline/internal/reservation"
	"github.com/md-rashed-zaman/courtline/internal/schedule"
)

type SlotsHandler struct {
	service *reservation.Service
	cache   *cache.ScheduleCache
	logger  *slog.Logger
	secret  string
}

func NewSlotsHandler(service *reservation.Service, scheduleCache *cache.ScheduleCache, logger *slog.Logger, jwtSecret string) *SlotsHandler {
	return &SlotsHandler{
		service: service,
		cache:   scheduleCache,
		logger:  logger,
		secret:  jwtSecret,
	}
}

type userRefItem struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

type reservationItem struct {
	ID           string       `json:"id"`
	ReservedAt   string       `json:"reservedAt"`
	ReservedByID string       `json:"reservedById"`
	ReservedBy   *userRefItem `json:"reservedBy,omitempty"`
}

type slotItem struct {
	ID         string       `json:"id"`
	ReservedBy *userRefItem `json:"reservedBy,omitempty"`
}

type dayGroupItem struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

type reserveRequest struct {
	ID string `json:"id"`
}

// Collection serves /slots: GET lists upcoming reservations (public),
// POST reserves a slot for the authenticated caller.
func (h *SlotsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.reserve(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item serves /slots/{id}: GET reads a single reservation (public),
// DELETE cancels the caller's reservation.
func (h *SlotsHandler) Item(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/slots/")
	if raw == "" {
		http.Error(w, "slot id required", http.StatusBadRequest)
		return
	}
	id, err := schedule.ParseSlotID(raw)
	if err != nil {
		http.Error(w, "invalid slot id", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodGet {
		slot, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toReservationItem(slot))
		return
	}

	caller := resolveIdentity(r, h.secret)
	if !caller.Resolved() {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	slot, err := h.service.Cancel(r.Context(), caller, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toReservationItem(slot))
}

// Schedule serves GET /schedule: the day-grouped bookable horizon merged
// with reservation state. Responses are cached for a short window.
func (h *SlotsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if body, ok := h.cache.Get(r.Context()); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	groups, err := h.service.Schedule(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]dayGroupItem, 0, len(groups))
	for _, g := range groups {
		item := dayGroupItem{Date: g.Date, Slots: make([]slotItem, 0, len(g.Slots))}
		for _, s := range g.Slots {
			item.Slots = append(item.Slots, slotItem{
				ID:         s.ID.String(),
				ReservedBy: toUserRefItem(s.ReservedBy),
			})
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	h.cache.Set(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *SlotsHandler) list(w http.ResponseWriter, r *http.Request) {
	svc := h.service
	lookback, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		http.Error(w, "invalid since parameter", http.StatusBadRequest)
		return
	}

	var slots []model.ReservedSlot
	if lookback >= 0 {
		slots, err = svc.ListUpcomingSince(r.Context(), lookback)
	} else {
		slots, err = svc.ListUpcoming(r.Context())
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]reservationItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, toReservationItem(s))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *SlotsHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	id, err := schedule.ParseSlotID(req.ID)
	if err != nil {
		http.Error(w, "invalid slot id", http.StatusBadRequest)
		return
	}

	caller := resolveIdentity(r, h.secret)
	if !caller.Resolved() {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	slot, err := h.service.Reserve(r.Context(), caller, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toReservationItem(slot))
}

func (h *SlotsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *reservation.ValidationError
	switch {
	case errors.Is(err, reservation.ErrUnauthenticated):
		http.Error(w, "authentication required", http.StatusUnauthorized)
	case errors.Is(err, reservation.ErrAlreadyReserved):
		http.Error(w, "slot already reserved", http.StatusConflict)
	case errors.Is(err, reservation.ErrNotFound):
		http.Error(w, "reservation not found", http.StatusNotFound)
	case errors.Is(err, reservation.ErrNotOwner):
		http.Error(w, "reservation held by another user", http.StatusForbidden)
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("reservation request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "temporary storage failure, retry later", http.StatusServiceUnavailable)
	}
}

// parseSince returns the lookback override, or -1 when absent.
func parseSince(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return -1, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || d > 7*24*time.Hour {
		return 0, errors.New("invalid since duration")
	}
	return d, nil
}

func toReservationItem(slot model.ReservedSlot) reservationItem {
	return reservationItem{
		ID:           slot.ID,
		ReservedAt:   slot.ReservedAt.UTC().Format(time.RFC3339),
		ReservedByID: slot.ReservedByID,
		ReservedBy:   toUserRefItem(slot.ReservedBy),
	}
}

func toUserRefItem(ref *model.UserRef) *userRefItem {
	if ref == nil {
		return nil
	}
	return &userRefItem{
		ID:          ref.ID,
		FirstName:   ref.FirstName,
		LastName:    ref.LastName,
		PhoneNumber: ref.PhoneNumber,
	}
}
