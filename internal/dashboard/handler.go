// Package dashboard aggregates the per-resource stats into the single
// overview payload the admin frontend polls.
package dashboard

import (
	"net/http"

	"github.com/getsentry/sentry-go"

	"lockersys/internal/httpx"
	"lockersys/internal/locker"
	"lockersys/internal/rental"
	"lockersys/internal/student"
)

type Stats struct {
	TotalLockers       int     `json:"total_lockers"`
	AvailableLockers   int     `json:"available_lockers"`
	RentedLockers      int     `json:"rented_lockers"`
	MaintenanceLockers int     `json:"maintenance_lockers"`
	ActiveRentals      int     `json:"active_rentals"`
	OverdueRentals     int     `json:"overdue_rentals"`
	MonthlyRevenue     float64 `json:"monthly_revenue"`
	TotalStudents      int     `json:"total_students"`
}

type Handler struct {
	lockers  locker.Store
	rentals  rental.Store
	students student.Store
}

func NewHandler(lockers locker.Store, rentals rental.Store, students student.Store) *Handler {
	return &Handler{lockers: lockers, rentals: rentals, students: students}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	lockerStats, err := h.lockers.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load dashboard stats")
		return
	}

	rentalStats, err := h.rentals.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load dashboard stats")
		return
	}

	studentStats, err := h.students.Stats(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load dashboard stats")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, Stats{
		TotalLockers:       lockerStats.Total,
		AvailableLockers:   lockerStats.Available,
		RentedLockers:      lockerStats.Rented,
		MaintenanceLockers: lockerStats.Maintenance,
		ActiveRentals:      rentalStats.Active,
		OverdueRentals:     rentalStats.Overdue,
		MonthlyRevenue:     rentalStats.MonthlyRevenue,
		TotalStudents:      studentStats.Total,
	})
}
