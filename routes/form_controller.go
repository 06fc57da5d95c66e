package routes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/view"
)

var reNoIdent = regexp.MustCompile(`\W+`)

var errConflict = errors.New("version conflict")

// fieldNames derives a name for every field that has none from its label. Repeated
// names get a __N suffix.
func fieldNames(fields []model.FormField) []string {
	names := make([]string, len(fields))
	used := map[string]bool{}
	for i, f := range fields {
		base := strings.TrimSpace(f.Name)
		if base == "" {
			base = strings.ToLower(f.Label)
			base = reNoIdent.ReplaceAllLiteralString(base, " ")
			base = strings.Join(strings.Fields(base), "_")
		}
		if base == "" {
			base = "field"
		}

		name := base
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s__%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func loadForm(ctx context.Context, db *sql.DB, formID int) (model.Form, error) {
	form := model.Form{}
	var settings string
	err := db.QueryRowContext(ctx, `
		SELECT id, version, title, description, type, status, settings, created_at, updated_at
		FROM form
		WHERE id = ?`,
		formID,
	).Scan(&form.ID, &form.Version, &form.Title, &form.Description, &form.Type, &form.Status, &settings, &form.CreatedAt, &form.UpdatedAt)
	if err != nil {
		return form, err
	}
	if settings != "" {
		if err = json.Unmarshal([]byte(settings), &form.Settings); err != nil {
			return form, err
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, type, name, label, placeholder, required, full_width, options
		FROM form_field
		WHERE form_id = ?
		ORDER BY position, id`,
		formID,
	)
	if err != nil {
		return form, err
	}
	defer rows.Close()

	form.Fields = []model.FormField{}
	for rows.Next() {
		f := model.FormField{}
		var opts string
		err = rows.Scan(&f.ID, &f.Type, &f.Name, &f.Label, &f.Placeholder, &f.Required, &f.FullWidth, &opts)
		if err != nil {
			return form, err
		}
		if opts != "" {
			if err = json.Unmarshal([]byte(opts), &f.Options); err != nil {
				return form, err
			}
		}
		form.Fields = append(form.Fields, f)
	}
	return form, rows.Err()
}

// saveForm inserts the form when it has no id, otherwise updates it if form.Version
// is still current. Fields are always rewritten.
func saveForm(ctx context.Context, db *sql.DB, form model.Form) (id, version int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	settings, err := json.Marshal(form.Settings)
	if err != nil || form.Settings == nil {
		settings = []byte("{}")
	}
	now := time.Now().UTC()

	if form.ID == 0 {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO form (title, description, type, status, settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id, version`,
			form.Title, form.Description, form.Type, form.Status, string(settings), now, now,
		).Scan(&id, &version)
		if err != nil {
			return 0, 0, err
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE form
			SET
				title = ?,
				description = ?,
				type = ?,
				status = ?,
				settings = ?,
				updated_at = ?,
				version = version+1
			WHERE id = ?
				AND version = ?`,
			form.Title, form.Description, form.Type, form.Status, string(settings), now,
			form.ID, form.Version,
		)
		if err != nil {
			return 0, 0, err
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, err
		}
		if n < 1 {
			return 0, 0, errConflict
		}
		id, version = form.ID, form.Version+1

		_, err = tx.ExecContext(ctx, `DELETE FROM form_field WHERE form_id = ?`, id)
		if err != nil {
			return 0, 0, err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO form_field (form_id, position, type, name, label, placeholder, required, full_width, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	names := fieldNames(form.Fields)
	for i, f := range form.Fields {
		var optionsJson []byte
		if f.Options != nil {
			optionsJson, err = json.Marshal(f.Options)
			if err != nil {
				return 0, 0, err
			}
		}
		_, err = stmt.ExecContext(ctx, id, i, f.Type, names[i], f.Label, f.Placeholder, f.Required, f.FullWidth, string(optionsJson))
		if err != nil {
			return 0, 0, err
		}
	}

	return id, version, tx.Commit()
}

func validateForm(f *model.Form) string {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return "Form title is required"
	}
	switch f.Type {
	case "":
		f.Type = "signup"
	case "signup", "contact", "multi_step":
	default:
		return "Unknown form type " + f.Type
	}
	switch f.Status {
	case "":
		f.Status = "active"
	case "active", "inactive", "draft":
	default:
		return "Unknown form status " + f.Status
	}
	for _, fld := range f.Fields {
		if fld.Type == "" {
			return "Every field needs a type"
		}
	}
	return ""
}

// AjaxGetAllForms answers dcf_get_all_forms.
func AjaxGetAllForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := listForms(r.Context(), app.DB)
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.get_forms", "Could not load forms", err)
			return
		}
		httpx.AjaxSuccess(w, r, map[string]any{"forms": forms})
	}
}

func listForms(ctx context.Context, db *sql.DB) ([]model.Form, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT f.id, f.version, f.title, f.description, f.type, f.status, f.created_at, f.updated_at
		FROM form f
		ORDER BY f.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		f := model.Form{}
		err = rows.Scan(&f.ID, &f.Version, &f.Title, &f.Description, &f.Type, &f.Status, &f.CreatedAt, &f.UpdatedAt)
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

type formRequest struct {
	FormID int `form:"form_id" json:"form_id"`
}

// AjaxGetFormData answers dcf_get_form_data.
func AjaxGetFormData(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := formRequest{}
		if err := httpx.DecodeAjax(r, &req); err != nil || req.FormID <= 0 {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.form_id", "Invalid form id", err)
			return
		}

		form, err := loadForm(r.Context(), app.DB, req.FormID)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "get_form.not_found", "Form not found", nil)
			return
		}
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.get_form", "Could not load form", err)
			return
		}
		httpx.AjaxSuccess(w, r, form)
	}
}

// AjaxGetFormHTML answers dcf_get_form_html, which hydrates form placeholders.
func AjaxGetFormHTML(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := formRequest{}
		if err := httpx.DecodeAjax(r, &req); err != nil || req.FormID <= 0 {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.form_id", "Invalid form id", err)
			return
		}

		form, err := loadForm(r.Context(), app.DB, req.FormID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && form.Status != "active") {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "get_form_html.not_found", "Form not found", nil)
			return
		}
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.get_form", "Could not load form", err)
			return
		}

		html, err := view.RenderForm(form)
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "view.render_form", "Could not render form", err)
			return
		}
		httpx.AjaxSuccess(w, r, map[string]any{"form_id": form.ID, "html": html})
	}
}

// AjaxSaveForm answers dcf_save_form. The form travels as JSON under "form".
func AjaxSaveForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := readDocument(r)
		if err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.parse_body", "Invalid request", err)
			return
		}
		form := model.Form{}
		if err = doc.Decode("form", &form); err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.form", "Invalid form data", err)
			return
		}
		if msg := validateForm(&form); msg != "" {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "save_form.validate", msg, nil)
			return
		}

		id, version, err := saveForm(r.Context(), app.DB, form)
		if errors.Is(err, errConflict) {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "db.save_form.conflict", "This form was changed by someone else. Reload it and try again.", nil)
			return
		}
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.save_form", "Could not save form", err)
			return
		}
		httpx.AjaxSuccess(w, r, map[string]any{"id": id, "version": version, "message": "Form saved"})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := listForms(r.Context(), app.DB)
		if err != nil {
			httpx.LogInternalError(w, "db.get_forms", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		form, err := loadForm(r.Context(), app.DB, formId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_form", formId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_form", err)
			return
		}
		render.JSON(w, r, form)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `DELETE FROM form WHERE id = ?`, formId)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_form.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_form", formId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
