package routes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/config"
	"github.com/mbolis/dcforms/engine"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/log"
	"github.com/mbolis/dcforms/model"
	"github.com/mbolis/dcforms/view"
)

const popupColumns = `id, version, name, type, status, design, config, triggers, targeting`

func scanPopup(scan func(...any) error) (model.Popup, error) {
	p := model.Popup{}
	var design, cfg, triggers, targeting string
	err := scan(&p.ID, &p.Version, &p.Name, &p.Type, &p.Status, &design, &cfg, &triggers, &targeting)
	if err != nil {
		return p, err
	}
	for _, col := range []struct {
		raw string
		v   any
	}{
		{design, &p.Design},
		{cfg, &p.Config},
		{triggers, &p.Triggers},
		{targeting, &p.Targeting},
	} {
		if col.raw == "" {
			continue
		}
		if err = json.Unmarshal([]byte(col.raw), col.v); err != nil {
			return p, err
		}
	}
	return p, nil
}

func loadPopups(ctx context.Context, db *sql.DB, status string) ([]model.Popup, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+popupColumns+`
		FROM popup
		WHERE ? = '' OR status = ?
		ORDER BY id`,
		status, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	popups := []model.Popup{}
	for rows.Next() {
		p, err := scanPopup(rows.Scan)
		if err != nil {
			return nil, err
		}
		popups = append(popups, p)
	}
	return popups, rows.Err()
}

func loadPopup(ctx context.Context, db *sql.DB, popupID int) (model.Popup, error) {
	return scanPopup(db.QueryRowContext(ctx, `SELECT `+popupColumns+` FROM popup WHERE id = ?`, popupID).Scan)
}

func savePopup(ctx context.Context, db *sql.DB, p model.Popup) (id, version int, err error) {
	cols := make([]string, 4)
	for i, v := range []any{p.Design, p.Config, p.Triggers, p.Targeting} {
		b, err := json.Marshal(v)
		if err != nil {
			return 0, 0, err
		}
		cols[i] = string(b)
	}
	now := time.Now().UTC()

	if p.ID == 0 {
		err = db.QueryRowContext(ctx, `
			INSERT INTO popup (name, type, status, design, config, triggers, targeting, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id, version`,
			p.Name, p.Type, p.Status, cols[0], cols[1], cols[2], cols[3], now, now,
		).Scan(&id, &version)
		return id, version, err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE popup
		SET
			name = ?,
			type = ?,
			status = ?,
			design = ?,
			config = ?,
			triggers = ?,
			targeting = ?,
			updated_at = ?,
			version = version+1
		WHERE id = ?
			AND version = ?`,
		p.Name, p.Type, p.Status, cols[0], cols[1], cols[2], cols[3], now,
		p.ID, p.Version,
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
	return p.ID, p.Version + 1, nil
}

var triggerTypes = map[model.TriggerType]bool{
	model.TriggerTimeDelay:        true,
	model.TriggerScrollPercentage: true,
	model.TriggerExitIntent:       true,
	model.TriggerPageViews:        true,
	model.TriggerSessionTime:      true,
	model.TriggerClick:            true,
}

func validatePopup(p *model.Popup) string {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return "Popup name is required"
	}
	if !p.Type.Valid() {
		return "Unknown popup type " + string(p.Type)
	}
	switch p.Status {
	case "":
		p.Status = "draft"
	case "active", "inactive", "draft":
	default:
		return "Unknown popup status " + p.Status
	}
	if !triggerTypes[p.Triggers.Type] {
		return "Unknown trigger type " + string(p.Triggers.Type)
	}
	t := p.Triggers
	switch {
	case t.Type == model.TriggerScrollPercentage && (t.Percentage < 0 || t.Percentage > 100):
		return "Scroll percentage must be between 0 and 100"
	case t.Type == model.TriggerClick && strings.TrimSpace(t.Selector) == "":
		return "Click trigger needs a selector"
	case t.Delay < 0 || t.Count < 0 || t.Minutes < 0 || t.ExitDelay < 0:
		return "Trigger values cannot be negative"
	}
	return ""
}

// editorRedirect is where the admin lands after saving popup id.
func editorRedirect(mode, origin string, id int) string {
	if mode == config.RedirectOrigin {
		mode = config.RedirectVisual
		if origin == config.RedirectClassic {
			mode = config.RedirectClassic
		}
	}
	path := "/admin/popups/visual"
	if mode == config.RedirectClassic {
		path = "/admin/popups/edit"
	}
	return path + "?id=" + strconv.Itoa(id)
}

// AjaxSavePopup answers dcf_save_popup. The popup travels as JSON under "popup"; the
// editor that issued the save is named by "editor".
func AjaxSavePopup(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := readDocument(r)
		if err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.parse_body", "Invalid request", err)
			return
		}
		popup := model.Popup{}
		if err = doc.Decode("popup", &popup); err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.popup", "Invalid popup data", err)
			return
		}
		if msg := validatePopup(&popup); msg != "" {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "save_popup.validate", msg, nil)
			return
		}

		id, version, err := savePopup(r.Context(), app.DB, popup)
		if errors.Is(err, errConflict) {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "db.save_popup.conflict", "This popup was changed by someone else. Reload it and try again.", nil)
			return
		}
		if err != nil {
			httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.save_popup", "Could not save popup", err)
			return
		}

		httpx.AjaxSuccess(w, r, map[string]any{
			"id":           id,
			"version":      version,
			"message":      "Popup saved",
			"redirect_url": editorRedirect(app.PopupEditorRedirect, doc.String("editor"), id),
		})
	}
}

func ListPopups(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		popups, err := loadPopups(r.Context(), app.DB, r.URL.Query().Get("status"))
		if err != nil {
			httpx.LogInternalError(w, "db.get_popups", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"popups": popups,
		})
	}
}

func GetPopupById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		popupId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		popup, err := loadPopup(r.Context(), app.DB, popupId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_popup", popupId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_popup", err)
			return
		}
		render.JSON(w, r, popup)
	}
}

func DeletePopup(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		popupId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `DELETE FROM popup WHERE id = ?`, popupId)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_popup", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_popup.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_popup", popupId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// GetPopupStats counts the tracked events of one popup.
func GetPopupStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		popupId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT event, COUNT(*)
			FROM popup_event
			WHERE popup_id = ?
			GROUP BY event`,
			popupId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_popup_stats", err)
			return
		}
		defer rows.Close()

		stats := map[string]int{
			engine.EventDisplay:     0,
			engine.EventInteraction: 0,
			engine.EventClose:       0,
			engine.EventConversion:  0,
		}
		for rows.Next() {
			var event string
			var n int
			if err = rows.Scan(&event, &n); err != nil {
				httpx.LogInternalError(w, "db.get_popup_stats.scan", err)
				return
			}
			stats[event] = n
		}

		rate := 0.0
		if stats[engine.EventDisplay] > 0 {
			rate = float64(stats[engine.EventConversion]) / float64(stats[engine.EventDisplay])
		}
		render.JSON(w, r, map[string]any{
			"popup_id":        popupId,
			"events":          stats,
			"conversion_rate": rate,
		})
	}
}

var reMobileUA = regexp.MustCompile(`(?i)mobile|android|iphone|ipod|ipad|blackberry|iemobile|opera mini`)

// PopupData serves the dcf_popup_data global: active popups, their rendered markup,
// the AJAX endpoint and a public nonce. A popup that cannot be rendered falls back to
// the no-content markup.
func PopupData(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		popups, err := loadPopups(r.Context(), app.DB, "active")
		if err != nil {
			httpx.LogInternalError(w, "db.get_popups", err)
			return
		}

		nonce, err := app.Nonces.Issue(httpx.NoncePublic)
		if err != nil {
			httpx.LogInternalError(w, "nonce.issue", err)
			return
		}

		data := engine.ClientData{
			Popups:   popups,
			Markup:   make([]view.Markup, 0, len(popups)),
			AjaxURL:  AjaxPath,
			Nonce:    nonce,
			IsMobile: reMobileUA.MatchString(r.UserAgent()),
		}
		for _, p := range popups {
			m, err := view.Render(p)
			if err != nil {
				log.Warnf("view.render_popup: popup %d: %s", p.ID, err)
				m = view.Fallback(p)
			}
			data.Markup = append(data.Markup, m)
		}

		body, err := json.Marshal(data)
		if err != nil {
			httpx.LogInternalError(w, "popup_data.marshal", err)
			return
		}
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte("window.dcf_popup_data = "))
		w.Write(body)
		w.Write([]byte(";\n"))
	}
}

type trackRequest struct {
	PopupID     int    `form:"popup_id" json:"popup_id"`
	Event       string `form:"event" json:"event"`
	PopupAction string `form:"popup_action" json:"popup_action"`
	Action      string `form:"event_action" json:"event_action"`
	PageURL     string `form:"page_url" json:"page_url"`
}

var trackedEvents = map[string]bool{
	engine.EventDisplay:     true,
	engine.EventInteraction: true,
	engine.EventClose:       true,
	engine.EventConversion:  true,
}

// insertPopupEvent reports false when the popup does not exist.
func insertPopupEvent(ctx context.Context, db *sql.DB, e model.PopupEvent) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO popup_event (id, popup_id, event, action, page_url, ip, created_at)
		SELECT ?, id, ?, ?, ?, ?, ?
		FROM popup
		WHERE id = ?`,
		e.ID, e.Event, e.Action, e.PageURL, e.IP, e.CreatedAt, e.PopupID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const maxPageURL = 2048

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func trackEvent(app app.App, w http.ResponseWriter, r *http.Request, req trackRequest) {
	if req.PopupID <= 0 || !trackedEvents[req.Event] {
		httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "track.validate", "Invalid tracking event", nil)
		return
	}
	req.PageURL = truncateUTF8(req.PageURL, maxPageURL)

	e := model.PopupEvent{
		ID:        newID(),
		PopupID:   req.PopupID,
		Event:     req.Event,
		Action:    req.Action,
		PageURL:   req.PageURL,
		IP:        httpx.ClientIP(r),
		CreatedAt: time.Now().UTC(),
	}
	found, err := insertPopupEvent(r.Context(), app.DB, e)
	if err != nil {
		httpx.AjaxError(w, r, http.StatusInternalServerError, log.ErrorLevel, "db.insert_popup_event", "Could not record event", err)
		return
	}
	if !found {
		httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "track.not_found", "Unknown popup", nil)
		return
	}
	httpx.AjaxSuccess(w, r, map[string]any{"tracked": true})
}

// AjaxTrackPopupEvent answers dcf_track_popup_event.
func AjaxTrackPopupEvent(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := trackRequest{}
		if err := httpx.DecodeAjax(r, &req); err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.parse_body", "Invalid request", err)
			return
		}
		trackEvent(app, w, r, req)
	}
}

// AjaxPopupAction answers dcf_popup_action, whose popup_action is track_display or
// track_interaction.
func AjaxPopupAction(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := trackRequest{}
		if err := httpx.DecodeAjax(r, &req); err != nil {
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "request.parse_body", "Invalid request", err)
			return
		}

		switch req.PopupAction {
		case "track_display":
			req.Event = engine.EventDisplay
		case "track_interaction":
			if req.Event == "" || req.Event == engine.EventDisplay {
				req.Event = engine.EventInteraction
			}
		default:
			httpx.AjaxError(w, r, http.StatusOK, log.DebugLevel, "popup_action.unknown", "Unknown popup action", nil)
			return
		}
		trackEvent(app, w, r, req)
	}
}
