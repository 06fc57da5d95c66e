// Package pos talks to the point-of-sale systems dry cleaners run their business on.
// Every vendor is reached through the same Adapter interface, so the rest of the
// application never branches on which POS is active.
package pos

import (
	"context"
	"time"

	"github.com/mbolis/dcforms/model"
)

type Adapter interface {
	Name() string
	IsConfigured() bool
	TestConnection(ctx context.Context) (ConnectionResult, error)
	CustomerExists(ctx context.Context, email, phone string) (LookupResult, error)
	CreateCustomer(ctx context.Context, data CustomerData) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, data UpdateData) (UpdateResult, error)
	GetPickupDates(ctx context.Context, customerID string, opts PickupOptions) ([]model.DateAvailability, error)
	SchedulePickup(ctx context.Context, customerID string, req model.AppointmentRequest) (*model.Appointment, error)
	ProcessPayment(ctx context.Context, customerID string, payment model.PaymentRequest) (*model.PaymentResult, error)
}

type ConnectionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// LookupResult always carries Exists; Customer is set only when Exists is true.
type LookupResult struct {
	Exists   bool            `json:"exists"`
	Customer *model.Customer `json:"customer,omitempty"`
}

type CustomerData struct {
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone"`
	PromoCode string         `json:"promo_code,omitempty"`
	Address   *model.Address `json:"address,omitempty"`
}

// UpdateData is interpreted by shape: a complete Address updates the address; Phone and
// Email together update the email of the customer found by phone.
type UpdateData struct {
	Email   string         `json:"email,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Address *model.Address `json:"address,omitempty"`
}

type UpdateResult struct {
	Updated  bool            `json:"updated"`
	Reason   string          `json:"reason"`
	Customer *model.Customer `json:"customer,omitempty"`
}

// Update reasons.
const (
	ReasonAddressUpdated   = "address_updated"
	ReasonEmailUpdated     = "email_updated"
	ReasonEmailUnchanged   = "email_unchanged"
	ReasonCustomerNotFound = "customer_not_found"
)

type PickupOptions struct {
	AddressID string `json:"address_id"`
	Phone     string `json:"phone"`
}

// Settings holds the credentials of every vendor; System selects the active one.
type Settings struct {
	System     string
	SMRT       SMRTSettings
	SPOT       SPOTSettings
	CleanCloud CleanCloudSettings
}

type SMRTSettings struct {
	GraphQLURL string
	APIKey     string
	StoreID    string
	AgentID    string
	RouteID    string
}

type SPOTSettings struct {
	BaseURL    string
	Username   string
	LicenseKey string
	AccountKey string
	StoreID    string
	AgentID    string
	RouteID    string
}

type CleanCloudSettings struct {
	APIToken string
}

const (
	smrtTimeout = 60 * time.Second
	spotTimeout = 30 * time.Second
)
