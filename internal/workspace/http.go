// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package workspace

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/temporahq/tempora/internal/guard"
	"github.com/temporahq/tempora/internal/platform/middleware"
	requestutil "github.com/temporahq/tempora/internal/platform/request"
	"github.com/temporahq/tempora/internal/platform/respond"
	"github.com/temporahq/tempora/internal/platform/sec"
	"github.com/temporahq/tempora/internal/platform/validate"
	"github.com/temporahq/tempora/pkg/pagination"
	"github.com/temporahq/tempora/pkg/slug"
	"github.com/temporahq/tempora/pkg/uuid"
)

// # HTTP Handler

// Handler exposes read access to the organizational graph.
type Handler struct {
	store Store
}

// NewHandler creates the workspace HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes mounts the workspace endpoints. All of them require authentication.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Get("/teams", handler.ListTeams)
	router.Get("/projects", handler.ListProjects)

	router.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireRole(sec.RoleSuperAdmin))
		admin.Post("/companies", handler.CreateCompany)
	})

	return router
}

type createCompanyRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"` // derived from the name when omitted
}

// CreateCompany handles POST /api/v1/companies. Super admins only.
func (handler *Handler) CreateCompany(writer http.ResponseWriter, request *http.Request) {
	var payload createCompanyRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if payload.Slug == "" {
		payload.Slug = slug.From(payload.Name)
	}

	validator := validate.New().
		Required("name", payload.Name).
		MaxLen("name", payload.Name, 120).
		Required("slug", payload.Slug).
		Slug("slug", payload.Slug)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	company := &Company{
		ID:   uuid.New(),
		Name: payload.Name,
		Slug: payload.Slug,
	}

	if err := handler.store.CreateCompany(request.Context(), company); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, company)
}

// ListTeams handles GET /api/v1/teams.
func (handler *Handler) ListTeams(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	scope, err := guard.ScopeFromClaims(claims)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	page := pagination.FromRequest(request)

	teams, total, err := handler.store.ListTeams(request.Context(), scope.CompanyID, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, teams, pagination.NewMeta(page, total))
}

// ListProjects handles GET /api/v1/projects.
func (handler *Handler) ListProjects(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	scope, err := guard.ScopeFromClaims(claims)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	page := pagination.FromRequest(request)

	projects, total, err := handler.store.ListProjects(request.Context(), scope.CompanyID, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, projects, pagination.NewMeta(page, total))
}
