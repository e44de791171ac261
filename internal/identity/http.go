// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/middleware"
	requestutil "github.com/temporahq/tempora/internal/platform/request"
	"github.com/temporahq/tempora/internal/platform/respond"
	"github.com/temporahq/tempora/internal/platform/validate"
)

// # HTTP Handler

// Handler exposes the authentication endpoints.
type Handler struct {
	service     *Service
	refreshTTL  time.Duration
	secureOnly  bool                            // Secure cookie flag, disabled only in development
	strictLimit func(http.Handler) http.Handler // throttle for the credential endpoints, nil disables
}

// NewHandler creates the identity HTTP handler. strictLimit, when non-nil,
// throttles login and refresh only: the already-authenticated endpoints stay
// on the general bucket.
func NewHandler(service *Service, refreshTTL time.Duration, secureOnly bool, strictLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:     service,
		refreshTTL:  refreshTTL,
		secureOnly:  secureOnly,
		strictLimit: strictLimit,
	}
}

// Routes mounts the authentication endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(credential chi.Router) {
		if handler.strictLimit != nil {
			credential.Use(handler.strictLimit)
		}
		credential.Post("/login", handler.Login)
		credential.Post("/refresh", handler.Refresh)
	})

	router.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth)
		protected.Post("/logout", handler.Logout)
		protected.Get("/me", handler.Me)
		protected.Put("/password", handler.ChangePassword)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// # Endpoints

// Login handles POST /api/v1/auth/login.
func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	var payload loginRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := validate.New().
		Required("email", payload.Email).
		Email("email", payload.Email).
		Required("password", payload.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Login(request.Context(), LoginInput{
		Email:       payload.Email,
		Password:    payload.Password,
		Origin:      middleware.RealIP(request),
		Fingerprint: request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, result.Tokens.RefreshToken)
	respond.OK(writer, result)
}

// Refresh handles POST /api/v1/auth/refresh.
//
// The refresh token may arrive in the JSON body or in the HttpOnly cookie set
// at login. The body wins when both are present.
func (handler *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {
	var payload refreshRequest
	_ = requestutil.DecodeJSON(request, &payload)

	token := payload.RefreshToken
	if token == "" {
		token = handler.refreshCookie(request)
	}
	if token == "" {
		respond.Error(writer, request, validate.New().
			Required("refresh_token", token).
			Err())
		return
	}

	pair, err := handler.service.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, pair.RefreshToken)
	respond.OK(writer, pair)
}

// Logout handles POST /api/v1/auth/logout.
func (handler *Handler) Logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload refreshRequest
	_ = requestutil.DecodeJSON(request, &payload)

	token := payload.RefreshToken
	if token == "" {
		token = handler.refreshCookie(request)
	}

	if err := handler.service.Logout(request.Context(), claims, token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// Me handles GET /api/v1/auth/me.
func (handler *Handler) Me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.Me(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles PUT /api/v1/auth/password.
func (handler *Handler) ChangePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var payload changePasswordRequest
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := validate.New().
		Required("current_password", payload.CurrentPassword).
		Required("new_password", payload.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ChangePassword(request.Context(), userID, payload.CurrentPassword, payload.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// # Cookie Mirror

// setRefreshCookie mirrors the refresh token into an HttpOnly cookie scoped
// to the auth endpoints, for browser clients that cannot store it safely.
func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, token string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    token,
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   int(handler.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   handler.secureOnly,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureOnly,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) refreshCookie(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
