package domain

import "time"

// Customer is looked up by normalized phone number (digits only). Created
// once at registration; immutable afterwards.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterCustomerReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
