package domain

import "time"

// RegistrationStatus tracks whether the visit is still on the floor
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCompleted RegistrationStatus = "completed"
)

// Child is one kid admitted on a ticket
type Child struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

// Guardian is one adult responsible for the kids on a ticket
type Guardian struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Socks is the sock rental block of a registration
type Socks struct {
	KidsQty    int `json:"kidsQty"`
	AdultsQty  int `json:"adultsQty"`
	TotalPrice int `json:"totalPrice"`
}

// Registration is the persisted record of a paid visit
type Registration struct {
	ID             string             `json:"_id"`
	TicketNumber   int                `json:"ticketNumber"`
	RegisteredAt   time.Time          `json:"registrationDate"`
	CheckoutAt     *time.Time         `json:"checkoutDate,omitempty"`
	ChildCount     int                `json:"childCount"`
	AdultCount     int                `json:"adultCount"`
	Children       []Child            `json:"children"`
	Guardians      []Guardian         `json:"guardians"`
	PlaytimeRate   int                `json:"playtimeRate"`
	Socks          Socks              `json:"socks"`
	GrandTotal     int                `json:"grandTotal"`
	AmountPaid     int                `json:"amountPaid"`
	PaymentSession string             `json:"paymentSession,omitempty"`
	Status         RegistrationStatus `json:"status"`
}

// ChargeRequest derives the device charge for this registration
func (r Registration) ChargeRequest() ChargeRequest {
	return ChargeRequest{
		PlaytimeRate: r.PlaytimeRate,
		ChildCount:   r.ChildCount,
		KidsSockQty:  r.Socks.KidsQty,
		AdultSockQty: r.Socks.AdultsQty,
	}
}
