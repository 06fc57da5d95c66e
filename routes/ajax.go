package routes

import (
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/pos"
	"github.com/mbolis/dcforms/routes/middlewares"
	"github.com/mbolis/dcforms/signup"
)

// AjaxPath is where the client posts admin-ajax actions.
const AjaxPath = "/wp-admin/admin-ajax.php"

type action struct {
	handler http.HandlerFunc
	// admin actions need an admin nonce.
	admin bool
	// capability actions mutate admin state and need an admin bearer token.
	capability bool
	// tracked actions are rate limited per client.
	tracked bool
}

func ajaxActions(app app.App) map[string]action {
	guard := newSubmissionGuard()
	flow := func(name string, validate func(map[string]string) error, step signup.Step, do customerStep) action {
		return action{handler: customerAction(app, guard, name, validate, step, do)}
	}

	return map[string]action{
		"dcf_get_all_forms": {handler: AjaxGetAllForms(app), admin: true},
		"dcf_get_form_data": {handler: AjaxGetFormData(app), admin: true},
		"dcf_save_form":     {handler: AjaxSaveForm(app), admin: true, capability: true},
		"dcf_get_form_html": {handler: AjaxGetFormHTML(app)},

		signup.ActionCheckCustomer:  flow("check_existing_customer", validateLookup, signup.PersonalInfo, checkExistingCustomer),
		signup.ActionCreateCustomer: flow("create_customer_account", validateStep(signup.PersonalInfo), signup.PersonalInfo, createCustomerAccount),
		signup.ActionUpdateAddress:  flow("update_customer_address", validateStep(signup.AddressInfo), signup.AddressInfo, updateCustomerAddress),
		signup.ActionSchedulePickup: flow("schedule_pickup", validateStep(signup.PickupScheduling), signup.PickupScheduling, schedulePickup),
		signup.ActionProcessPayment: flow("process_payment", validateStep(signup.Payment), signup.Payment, processPayment),

		"dcf_track_popup_event": {handler: AjaxTrackPopupEvent(app), tracked: true},
		"dcf_popup_action":      {handler: AjaxPopupAction(app), tracked: true},

		"dcf_test_pos_connection": {handler: AjaxTestPOSConnection(app), admin: true, capability: true},
		"dcf_save_popup":          {handler: AjaxSavePopup(app), admin: true, capability: true},
	}
}

// AdminAjax dispatches on the action parameter. Every action is nonce-gated; the
// nonce scope, the capability check and rate limiting depend on the action.
func AdminAjax(app app.App) http.HandlerFunc {
	limiter := middlewares.NewClientLimiter(app.TrackRate, int(math.Ceil(app.TrackRate*2)))

	handlers := map[string]http.Handler{}
	for name, a := range ajaxActions(app) {
		scope := httpx.NoncePublic
		if a.admin {
			scope = httpx.NonceAdmin
		}

		var chain chi.Middlewares
		if a.tracked {
			chain = append(chain, middlewares.RateLimit(limiter))
		}
		chain = append(chain, middlewares.Nonce(app.Nonces, scope))
		if a.capability {
			chain = append(chain, middlewares.BearerFromCookie, middlewares.AjaxAdmin(app.TokenSecret))
		}
		handlers[name] = chain.HandlerFunc(a.handler)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		name := actionName(r)
		h, ok := handlers[name]
		if !ok {
			httpx.AjaxError(w, r, http.StatusBadRequest, log.DebugLevel, "ajax.unknown_action", "Unknown action", nil)
			return
		}
		h.ServeHTTP(w, r)
	}
}

// AjaxTestPOSConnection answers dcf_test_pos_connection for the configured vendor.
func AjaxTestPOSConnection(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter, err := app.Adapter(r.Context())
		if err != nil {
			msg := err.Error()
			var pe *pos.Error
			if errors.As(err, &pe) {
				msg = pe.Message
			}
			httpx.AjaxError(w, r, http.StatusOK, log.InfoLevel, "pos.test_connection", msg, err)
			return
		}

		res, err := adapter.TestConnection(r.Context())
		if err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.InfoLevel, "pos.test_connection", adapter.Name()+": "+err.Error(), err)
			return
		}
		if !res.Success {
			httpx.AjaxErrorData(w, r, http.StatusOK, log.InfoLevel, "pos.test_connection", httpx.ErrorData{Message: res.Message, Fields: res.Details})
			return
		}
		httpx.AjaxSuccess(w, r, res)
	}
}
