package pos

import (
	"context"
	"strings"

	"github.com/mbolis/dcforms/model"
)

// customerEditor is the vendor-specific half of UpdateCustomer.
type customerEditor interface {
	CustomerExists(ctx context.Context, email, phone string) (LookupResult, error)
	updateAddress(ctx context.Context, customerID string, addr model.Address) (*model.Address, error)
	updateEmail(ctx context.Context, customerID, email string) (*model.Customer, error)
}

// updateCustomer routes an update by payload shape. Phone-only updates are rejected:
// the product has not decided what they should do.
func updateCustomer(ctx context.Context, ed customerEditor, customerID string, data UpdateData) (UpdateResult, error) {
	switch {
	case data.Address != nil && data.Address.Complete():
		addr, err := ed.updateAddress(ctx, customerID, *data.Address)
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{
			Updated: true,
			Reason:  ReasonAddressUpdated,
			Customer: &model.Customer{
				ID:        customerID,
				Addresses: []model.Address{*addr},
			},
		}, nil

	case data.Phone != "" && data.Email != "":
		found, err := ed.CustomerExists(ctx, "", data.Phone)
		if err != nil {
			return UpdateResult{}, err
		}
		if !found.Exists {
			return UpdateResult{Reason: ReasonCustomerNotFound}, nil
		}
		if strings.EqualFold(strings.TrimSpace(found.Customer.Email), strings.TrimSpace(data.Email)) {
			return UpdateResult{Reason: ReasonEmailUnchanged, Customer: found.Customer}, nil
		}
		id := found.Customer.ID
		if id == "" {
			id = customerID
		}
		c, err := ed.updateEmail(ctx, id, data.Email)
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Updated: true, Reason: ReasonEmailUpdated, Customer: c}, nil
	}

	return UpdateResult{}, validationError("unsupported_update", "update needs either a complete address or both phone and email")
}

func requirePickupOptions(opts PickupOptions) error {
	if opts.AddressID == "" {
		return validationError("missing_address_id", "address_id is required to look up pickup dates")
	}
	if opts.Phone == "" {
		return validationError("missing_phone", "phone is required to look up pickup dates")
	}
	return nil
}
