// Package signup drives the multi-step customer signup form: which step follows which,
// what each step must contain, and which AJAX call stands between two steps.
package signup

import (
	"fmt"

	"github.com/pkg/errors"
)

type Step int

const (
	PersonalInfo Step = iota
	ServiceSelection
	AddressInfo
	PickupScheduling
	Payment
	Complete
)

var stepNames = [...]string{"personal_info", "service_selection", "address_info", "pickup_scheduling", "payment", "complete"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Steps lists every step in display order.
func Steps() []Step {
	return []Step{PersonalInfo, ServiceSelection, AddressInfo, PickupScheduling, Payment, Complete}
}

func (s Step) Valid() bool { return s >= PersonalInfo && s <= Complete }

type ServiceType string

const (
	ServiceRetailStore    ServiceType = "retail_store"
	ServiceNotSure        ServiceType = "not_sure"
	ServicePickupDelivery ServiceType = "pickup_delivery"
)

// Input is what a transition may depend on.
type Input struct {
	Service         ServiceType
	PaymentRequired bool
}

var (
	ErrIllegalTransition = errors.New("illegal step transition")
	ErrUnknownService    = errors.New("unknown service type")
)

type transitionFunc func(Input) (Step, error)

func to(s Step) transitionFunc {
	return func(Input) (Step, error) { return s, nil }
}

var transitions = map[Step]transitionFunc{
	PersonalInfo: to(ServiceSelection),
	ServiceSelection: func(in Input) (Step, error) {
		switch in.Service {
		case ServiceRetailStore, ServiceNotSure:
			return Complete, nil
		case ServicePickupDelivery:
			return AddressInfo, nil
		}
		return ServiceSelection, errors.Wrapf(ErrUnknownService, "%q", in.Service)
	},
	AddressInfo: to(PickupScheduling),
	PickupScheduling: func(in Input) (Step, error) {
		if in.PaymentRequired {
			return Payment, nil
		}
		return Complete, nil
	},
	Payment: to(Complete),
}

// Next returns the step that follows from. Complete has no successor.
func Next(from Step, in Input) (Step, error) {
	t, ok := transitions[from]
	if !ok {
		return from, errors.Wrapf(ErrIllegalTransition, "from %s", from)
	}
	return t(in)
}
