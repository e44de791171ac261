// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/respond"
)

// # Route Throttling

func TestRoutes_StrictLimitCoversCredentialEndpointsOnly(t *testing.T) {
	// A limiter that rejects everything makes the bucket's reach visible.
	exhausted := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			respond.Error(writer, request, apperr.RateLimited(30))
		})
	}

	handler := NewHandler(&Service{}, time.Hour, false, exhausted)
	router := handler.Routes()

	for _, path := range []string{"/login", "/refresh"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
		assert.Equal(t, http.StatusTooManyRequests, recorder.Code,
			"%s must sit behind the credential bucket", path)
	}

	// The authenticated endpoints ride the general bucket: with the
	// credential bucket exhausted they still answer, here with the 401
	// from the missing claims.
	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/me"},
		{http.MethodPost, "/logout"},
		{http.MethodPut, "/password"},
	} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code,
			"%s %s must not be throttled by the credential bucket", route.method, route.path)
	}
}

func TestRoutes_NilStrictLimitDisablesThrottle(t *testing.T) {
	handler := NewHandler(&Service{}, time.Hour, false, nil)
	router := handler.Routes()

	// Reaches the handler and fails validation, not the limiter.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{}")))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
