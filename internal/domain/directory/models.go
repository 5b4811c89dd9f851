package directory

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Employee struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	EmpCode         string    `json:"empCode,omitempty"`
	ManagerID       *string   `json:"managerId,omitempty"`
	IsLeaveEligible bool      `json:"isLeaveEligible"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}
