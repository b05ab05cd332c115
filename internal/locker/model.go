package locker

import "time"

type Locker struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Location     string    `json:"location"`
	Size         string    `json:"size"`
	Status       string    `json:"status"`
	MonthlyPrice float64   `json:"monthly_price"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Stats struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Rented      int `json:"rented"`
	Maintenance int `json:"maintenance"`
	Reserved    int `json:"reserved"`
}

const (
	StatusAvailable   = "available"
	StatusRented      = "rented"
	StatusMaintenance = "maintenance"
	StatusReserved    = "reserved"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusAvailable, StatusRented, StatusMaintenance, StatusReserved:
		return true
	}
	return false
}

func ValidSize(size string) bool {
	switch size {
	case "small", "medium", "large":
		return true
	}
	return false
}
