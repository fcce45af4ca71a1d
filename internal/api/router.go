package api

import (
	"net/http"

	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/live"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/workflow"
)

// DefaultMaxUploadBytes bounds request bodies when Deps leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// Deps are the collaborators the API is built on.
type Deps struct {
	DB             *db.DB
	JWTSecret      string
	Service        *workflow.Service
	Hub            *live.Hub
	MaxUploadBytes int64
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.Hub == nil {
		d.Hub = live.NewHub(nil)
	}

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	locationsHandler := &LocationsHandler{Service: d.Service, Hub: d.Hub}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireSupervisor := RequireRole(model.RoleSupervisor)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (supervisor only).
	mux.Handle("GET /api/users", authMW(requireSupervisor(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireSupervisor(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireSupervisor(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireSupervisor(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireSupervisor(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireSupervisor(http.HandlerFunc(usersHandler.Delete))))

	// Entities: the workflow decides who may do what.
	for _, kind := range []model.Kind{model.KindAsset, model.KindTracker} {
		h := &EntitiesHandler{Service: d.Service, Kind: kind, MaxUploadBytes: d.MaxUploadBytes}
		base := "/api/" + string(kind) + "s"

		mux.Handle("GET "+base, authMW(http.HandlerFunc(h.List)))
		mux.Handle("POST "+base, authMW(http.HandlerFunc(h.Create)))
		mux.Handle("GET "+base+"/{id}", authMW(http.HandlerFunc(h.Get)))
		mux.Handle("PATCH "+base+"/{id}", authMW(http.HandlerFunc(h.Update)))
		mux.Handle("DELETE "+base+"/{id}", authMW(http.HandlerFunc(h.Delete)))
		mux.Handle("POST "+base+"/{id}/request-edit", authMW(http.HandlerFunc(h.RequestEdit)))
		mux.Handle("POST "+base+"/{id}/approve-edit", authMW(http.HandlerFunc(h.ApproveEdit)))
		mux.Handle("POST "+base+"/{id}/approve", authMW(http.HandlerFunc(h.Approve)))
	}

	// Tracker locations.
	mux.Handle("POST /api/trackers/{id}/locations", authMW(http.HandlerFunc(locationsHandler.Append)))
	mux.Handle("GET /api/trackers/{id}/locations", authMW(http.HandlerFunc(locationsHandler.History)))
	mux.Handle("GET /api/trackers/{id}/locations/live", authMW(http.HandlerFunc(locationsHandler.Live)))

	return mux
}
