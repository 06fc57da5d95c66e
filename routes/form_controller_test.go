package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/mbolis/dcforms/httpx"
	"github.com/mbolis/dcforms/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldNames(t *testing.T) {
	names := fieldNames([]model.FormField{
		{Label: "First Name"},
		{Label: "First name"},
		{Name: "email", Label: "Whatever"},
		{Label: "  What's your ZIP?  "},
		{Label: "!!!"},
		{Label: "First Name"},
	})
	assert.Equal(t, []string{"first_name", "first_name__1", "email", "what_s_your_zip", "field", "first_name__2"}, names)
}

func TestValidateForm(t *testing.T) {
	f := model.Form{Title: "  Signup "}
	assert.Empty(t, validateForm(&f))
	assert.Equal(t, "Signup", f.Title)
	assert.Equal(t, "signup", f.Type)
	assert.Equal(t, "active", f.Status)

	assert.Equal(t, "Form title is required", validateForm(&model.Form{}))
	assert.Equal(t, "Unknown form type quiz", validateForm(&model.Form{Title: "x", Type: "quiz"}))
	assert.Equal(t, "Every field needs a type", validateForm(&model.Form{Title: "x", Fields: []model.FormField{{Label: "a"}}}))
}

func sampleForm() model.Form {
	return model.Form{
		Title:  "Free pickup",
		Type:   "signup",
		Status: "active",
		Fields: []model.FormField{
			{Type: "text", Label: "First Name", Required: true},
			{Type: "email", Label: "Email", Required: true},
			{Type: "select", Label: "Service", Options: []any{"Wash & Fold", "Dry Cleaning"}},
		},
	}
}

func TestSaveAndLoadForm(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	id, version, err := saveForm(ctx, a.DB, sampleForm())
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, 1, version)

	form, err := loadForm(ctx, a.DB, id)
	require.NoError(t, err)
	assert.Equal(t, "Free pickup", form.Title)
	require.Len(t, form.Fields, 3)
	assert.Equal(t, "first_name", form.Fields[0].Name)
	assert.Equal(t, "service", form.Fields[2].Name)
	assert.Equal(t, []any{"Wash & Fold", "Dry Cleaning"}, form.Fields[2].Options)

	form.Title = "Free pickup today"
	form.Fields = form.Fields[:1]
	_, version, err = saveForm(ctx, a.DB, form)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, _, err = saveForm(ctx, a.DB, form)
	assert.ErrorIs(t, err, errConflict)

	form, err = loadForm(ctx, a.DB, id)
	require.NoError(t, err)
	assert.Equal(t, "Free pickup today", form.Title)
	assert.Len(t, form.Fields, 1)
}

func TestAjaxSaveFormAndFetch(t *testing.T) {
	a, _ := newTestApp(t)
	h := AdminAjax(a)
	cookies := loginCookies(t, a)
	adminNonce := nonce(t, a, httpx.NonceAdmin)

	doc, _ := json.Marshal(sampleForm())
	rec := postForm(h, url.Values{"action": {"dcf_save_form"}, "nonce": {adminNonce}, "form": {string(doc)}}, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e := decodeEnvelope(t, rec)
	require.True(t, e.Success, string(e.Data))

	var saved struct {
		ID      int    `json:"id"`
		Version int    `json:"version"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &saved))
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, "Form saved", saved.Message)

	rec = postForm(h, url.Values{"action": {"dcf_get_all_forms"}, "nonce": {adminNonce}})
	e = decodeEnvelope(t, rec)
	require.True(t, e.Success)
	var forms []model.Form
	require.NoError(t, json.Unmarshal(e.Data, &forms))
	require.Len(t, forms, 1)
	assert.Equal(t, saved.ID, forms[0].ID)

	rec = postForm(h, url.Values{"action": {"dcf_get_form_data"}, "nonce": {adminNonce}, "form_id": {itoa(saved.ID)}})
	e = decodeEnvelope(t, rec)
	require.True(t, e.Success)
	var form model.Form
	require.NoError(t, json.Unmarshal(e.Data, &form))
	assert.Len(t, form.Fields, 3)

	rec = postForm(h, url.Values{"action": {"dcf_get_form_html"}, "nonce": {nonce(t, a, httpx.NoncePublic)}, "form_id": {itoa(saved.ID)}})
	e = decodeEnvelope(t, rec)
	require.True(t, e.Success)
	var hydrated struct {
		FormID int    `json:"form_id"`
		HTML   string `json:"html"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &hydrated))
	assert.Equal(t, saved.ID, hydrated.FormID)
	assert.Contains(t, hydrated.HTML, `name="first_name"`)
	assert.Contains(t, hydrated.HTML, "Dry Cleaning")
}

func TestAjaxSaveFormRejectsInvalid(t *testing.T) {
	a, _ := newTestApp(t)

	rec := postJSON(AjaxSaveForm(a), "", map[string]any{"form": map[string]any{"title": " "}})
	require.Equal(t, http.StatusOK, rec.Code)
	e := decodeEnvelope(t, rec)
	assert.False(t, e.Success)
	assert.Equal(t, "Form title is required", e.message())

	rec = postJSON(AjaxSaveForm(a), "", map[string]any{"other": 1})
	e = decodeEnvelope(t, rec)
	assert.False(t, e.Success)
	assert.Equal(t, "Invalid form data", e.message())
}

func TestAjaxGetFormHTMLHidesInactive(t *testing.T) {
	a, _ := newTestApp(t)
	f := sampleForm()
	f.Status = "draft"
	id, _, err := saveForm(context.Background(), a.DB, f)
	require.NoError(t, err)

	rec := postForm(AjaxGetFormHTML(a), url.Values{"form_id": {itoa(id)}})
	e := decodeEnvelope(t, rec)
	assert.False(t, e.Success)
	assert.Equal(t, "Form not found", e.message())
}

func TestFormAPI(t *testing.T) {
	a, _ := newTestApp(t)
	id, _, err := saveForm(context.Background(), a.DB, sampleForm())
	require.NoError(t, err)

	h := Wire(a)
	cookies := loginCookies(t, a)
	call := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call("GET", "/api/admin/forms/"+itoa(id))
	require.Equal(t, http.StatusOK, rec.Code)
	var form model.Form
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &form))
	assert.Equal(t, "Free pickup", form.Title)

	assert.Equal(t, http.StatusNoContent, call("DELETE", "/api/admin/forms/"+itoa(id)).Code)
	assert.Equal(t, http.StatusNotFound, call("GET", "/api/admin/forms/"+itoa(id)).Code)
	assert.Equal(t, http.StatusNotFound, call("DELETE", "/api/admin/forms/"+itoa(id)).Code)

	req := httptest.NewRequest("GET", "/api/admin/forms", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
