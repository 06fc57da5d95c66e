package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/model"
)

// AdminNonce issues the nonce admin pages send with admin-ajax actions.
func AdminNonce(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce, err := app.Nonces.Issue(httpx.NonceAdmin)
		if err != nil {
			httpx.LogInternalError(w, "nonce.issue", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"nonce":    nonce,
			"ajax_url": AjaxPath,
		})
	}
}

func GetIntegrationLog(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := app.IntegrationLog.Recent(r.Context(), r.URL.Query().Get("outcome"), limit)
		if err != nil {
			httpx.LogInternalError(w, "db.get_integration_log", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"entries": entries,
		})
	}
}

// GetSubmissions lists the mirrored multi-step submissions, newest first, optionally
// for one form.
func GetSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, _ := strconv.Atoi(r.URL.Query().Get("form_id"))

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, form_id, step, data, customer_id, address_id, phone, ip, created_at, updated_at
			FROM submission
			WHERE ? = 0 OR form_id = ?
			ORDER BY updated_at DESC
			LIMIT 500`,
			formId, formId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}
		defer rows.Close()

		submissions := []model.Submission{}
		for rows.Next() {
			s := model.Submission{}
			var data string
			err = rows.Scan(&s.ID, &s.FormID, &s.Step, &data, &s.CustomerID, &s.AddressID, &s.Phone, &s.IP, &s.CreatedAt, &s.UpdatedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submissions.scan", err)
				return
			}
			if err = json.Unmarshal([]byte(data), &s.Data); err != nil {
				httpx.LogInternalError(w, "db.get_submissions.parse_data", err)
				return
			}
			submissions = append(submissions, s)
		}

		render.JSON(w, r, map[string]any{
			"submissions": submissions,
		})
	}
}
