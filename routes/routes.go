package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/dcforms/app"
	"github.com/mbolis/dcforms/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	ajax := AdminAjax(app)
	root.Post(AjaxPath, ajax)
	root.Post("/ajax", ajax)

	root.Get("/dcf/popup-data.js", PopupData(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.BearerFromCookie, middlewares.Admin(app.TokenSecret))

		r.Get("/nonce", AdminNonce(app))

		r.Get("/forms", ListForms(app))
		r.Get(`/forms/{id:^\d+$}`, GetFormById(app))
		r.Delete(`/forms/{id:^\d+$}`, DeleteForm(app))

		r.Get("/popups", ListPopups(app))
		r.Get(`/popups/{id:^\d+$}`, GetPopupById(app))
		r.Delete(`/popups/{id:^\d+$}`, DeletePopup(app))
		r.Get(`/popups/{id:^\d+$}/stats`, GetPopupStats(app))

		r.Get("/submissions", GetSubmissions(app))
		r.Get("/integration-log", GetIntegrationLog(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))
	api.Post("/logout", Logout)

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
