package model

// Customer is the vendor-neutral customer record. ID is opaque and must be passed back
// unchanged to the vendor that produced it.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Addresses []Address `json:"addresses"`
}

type Address struct {
	ID      string `json:"id"`
	Street  string `json:"street"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// Complete reports whether all required address fields are present.
func (a Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.ZipCode != ""
}

type TimeSlot struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type DateAvailability struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"` // YYYY-MM-DD
	TimeSlots []TimeSlot `json:"timeSlots"`
}

type AppointmentRequest struct {
	DateID     string `json:"date_id"`
	TimeSlotID string `json:"time_slot_id"`
	AddressID  string `json:"address_id"`
}

type Appointment struct {
	ID                 string `json:"id"`
	CustomerID         string `json:"customerId"`
	Date               string `json:"date"`
	Status             string `json:"status"`
	ConfirmationNumber string `json:"confirmationNumber"`
}

type PaymentRequest struct {
	CardNumber  string `json:"card_number"`
	ExpMonth    int    `json:"exp_month"`
	ExpYear     int    `json:"exp_year"`
	CVV         string `json:"cvv"`
	NameOnCard  string `json:"name_on_card,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

type PaymentResult struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CardBrand   string `json:"cardBrand"`
	Last4       string `json:"last4"`
	AmountCents int64  `json:"amountCents,omitempty"`
}
