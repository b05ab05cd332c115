package rental

import "time"

// Rental carries a summary of the student and locker it links so list
// views do not need follow-up lookups.
type Rental struct {
	ID            string        `json:"id"`
	Locker        RentalLocker  `json:"locker"`
	Student       RentalStudent `json:"student"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	MonthlyPrice  float64       `json:"monthly_price"`
	TotalAmount   float64       `json:"total_amount"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type RentalStudent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	StudentNumber string `json:"student_number"`
}

type RentalLocker struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	Location string `json:"location"`
}

type Stats struct {
	Total          int     `json:"total"`
	Active         int     `json:"active"`
	Overdue        int     `json:"overdue"`
	Completed      int     `json:"completed"`
	Cancelled      int     `json:"cancelled"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
}

const (
	StatusActive    = "active"
	StatusOverdue   = "overdue"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentOverdue = "overdue"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusOverdue, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func ValidPaymentStatus(status string) bool {
	switch status {
	case PaymentPending, PaymentPaid, PaymentOverdue:
		return true
	}
	return false
}
