// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package timer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/temporahq/tempora/internal/guard"
	"github.com/temporahq/tempora/internal/platform/middleware"
	requestutil "github.com/temporahq/tempora/internal/platform/request"
	"github.com/temporahq/tempora/internal/platform/respond"
	"github.com/temporahq/tempora/internal/platform/validate"
	"github.com/temporahq/tempora/pkg/pagination"
	"github.com/temporahq/tempora/pkg/query"
)

// # HTTP Handler

// Handler exposes the time-tracking endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates the timer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the time-tracking endpoints. All of them require authentication.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Post("/start", handler.Start)
	router.Post("/stop", handler.Stop)
	router.Get("/active", handler.Active)

	router.Post("/", handler.CreateManual)
	router.Get("/", handler.List)
	router.Put("/{entryID}", handler.Update)
	router.Delete("/{entryID}", handler.Delete)

	return router
}

// scopeFor derives the tenancy scope of the authenticated request.
func scopeFor(request *http.Request) (guard.Scope, error) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		return guard.Scope{}, err
	}
	return guard.ScopeFromClaims(claims)
}

// Start handles POST /api/v1/time/start.
func (handler *Handler) Start(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input StartInput
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	entry, err := handler.service.Start(request.Context(), scope, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, entry)
}

// Stop handles POST /api/v1/time/stop.
func (handler *Handler) Stop(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entry, err := handler.service.Stop(request.Context(), scope)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entry.Derive())
}

// Active handles GET /api/v1/time/active.
//
// Answers from the presence hub, not the database: this endpoint backs live
// dashboards and must stay cheap under polling.
func (handler *Handler) Active(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	teamID := query.String(request.URL.Query(), "team_id")

	respond.OK(writer, handler.service.Active(scope, teamID))
}

// CreateManual handles POST /api/v1/time.
func (handler *Handler) CreateManual(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input ManualInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.CreateManual(request.Context(), scope, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, result)
}

// List handles GET /api/v1/time.
func (handler *Handler) List(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	values := request.URL.Query()
	listQuery := ListQuery{
		UserID:      query.String(values, "user_id"),
		ProjectID:   query.String(values, "project_id"),
		RunningOnly: query.String(values, "running") == "true",
	}
	if from, ok := query.Time(values, "from"); ok {
		listQuery.From = &from
	}
	if to, ok := query.Time(values, "to"); ok {
		listQuery.To = &to
	}

	page := pagination.FromRequest(request)

	entries, total, err := handler.service.List(request.Context(), scope, listQuery, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, pagination.NewMeta(page, total))
}

// Update handles PUT /api/v1/time/{entryID}.
func (handler *Handler) Update(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entryID := requestutil.ID(request, "entryID")
	if err := validate.New().UUID("entryID", entryID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input UpdateInput
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Update(request.Context(), scope, entryID, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// Delete handles DELETE /api/v1/time/{entryID}.
func (handler *Handler) Delete(writer http.ResponseWriter, request *http.Request) {
	scope, err := scopeFor(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entryID := requestutil.ID(request, "entryID")
	if err := validate.New().UUID("entryID", entryID).Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Delete(request.Context(), scope, entryID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
