package student

import "time"

type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         *string   `json:"phone,omitempty"`
	StudentNumber string    `json:"student_number"`
	Course        string    `json:"course"`
	Semester      int       `json:"semester"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"

	minSemester = 1
	maxSemester = 3
)

func ValidStatus(status string) bool {
	return status == StatusActive || status == StatusInactive
}

func ValidSemester(semester int) bool {
	return semester >= minSemester && semester <= maxSemester
}
