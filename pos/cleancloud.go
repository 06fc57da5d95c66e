package pos

import (
	"context"

	"github.com/mbolis/dcforms/model"
)

// CleanCloud is registered so it can be selected and tested, but its commerce
// operations are not implemented yet.
type CleanCloud struct {
	cfg CleanCloudSettings
	rec recorder
}

func NewCleanCloud(cfg CleanCloudSettings, opts Options) *CleanCloud {
	return &CleanCloud{cfg: cfg, rec: newRecorder(VendorCleanCloud, opts.Log)}
}

func (c *CleanCloud) Name() string { return "CleanCloud" }

func (c *CleanCloud) IsConfigured() bool { return c.cfg.APIToken != "" }

func (c *CleanCloud) unsupported(ctx context.Context, op string, req any) error {
	err := validationError("not_implemented", "CleanCloud does not support "+op+" yet")
	c.rec.record(ctx, op, c.rec.now(), req, nil, err)
	return err
}

func (c *CleanCloud) TestConnection(ctx context.Context) (ConnectionResult, error) {
	if !c.IsConfigured() {
		return ConnectionResult{Message: "CleanCloud credentials are not configured"}, notConfigured(c.Name())
	}
	return ConnectionResult{Message: "CleanCloud integration is not implemented"}, c.unsupported(ctx, "test_connection", nil)
}

func (c *CleanCloud) CustomerExists(ctx context.Context, email, phone string) (LookupResult, error) {
	return LookupResult{}, c.unsupported(ctx, "customer_exists", map[string]string{"email": email, "phone": phone})
}

func (c *CleanCloud) CreateCustomer(ctx context.Context, data CustomerData) (*model.Customer, error) {
	return nil, c.unsupported(ctx, "create_customer", data)
}

func (c *CleanCloud) UpdateCustomer(ctx context.Context, customerID string, data UpdateData) (UpdateResult, error) {
	return UpdateResult{}, c.unsupported(ctx, "update_customer", data)
}

func (c *CleanCloud) GetPickupDates(ctx context.Context, customerID string, opts PickupOptions) ([]model.DateAvailability, error) {
	return nil, c.unsupported(ctx, "get_pickup_dates", opts)
}

func (c *CleanCloud) SchedulePickup(ctx context.Context, customerID string, req model.AppointmentRequest) (*model.Appointment, error) {
	return nil, c.unsupported(ctx, "schedule_pickup", req)
}

func (c *CleanCloud) ProcessPayment(ctx context.Context, customerID string, p model.PaymentRequest) (*model.PaymentResult, error) {
	return nil, c.unsupported(ctx, "process_payment", p)
}
