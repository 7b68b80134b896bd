package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spotbook/internal/bookings/repository"
	"spotbook/internal/bookings/service"
	"spotbook/internal/bookings/validator"
	"spotbook/pkg/config"
	"spotbook/pkg/contracts"
	apperrors "spotbook/pkg/errors"
	httputil "spotbook/pkg/http"
	"spotbook/pkg/logger"
	"spotbook/pkg/middleware"
	"spotbook/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type testServer struct {
	handler http.Handler
	repo    *repository.MemoryBookingRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.Discard()
	repo := repository.NewMemoryBookingRepository()
	spots := repository.NewMemorySpotDirectory()
	spots.Put(model.Spot{ID: "1", OwnerID: "owner"})

	cfg := &config.Config{Log: log, Location: time.UTC}
	svc := service.NewBookingService(repo, repository.NewMemorySpotLocker(time.Second), spots, nil, cfg,
		service.WithClock(func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }),
	)

	router := httprouter.New()
	NewBookingHandler(svc, validator.NewBookingValidator(log), log).RegisterRoutes(router)

	var h http.Handler = router
	h = middleware.Authentication(testSecret, log)(h)
	h = middleware.ContentTypeValidation(log)(h)

	return &testServer{handler: h, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		token, err := middleware.SignToken(testSecret, userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type bookingEnvelope struct {
	Data model.Booking `json:"data"`
}

type listEnvelope struct {
	Data struct {
		Bookings []json.RawMessage `json:"bookings"`
	} `json:"data"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func (s *testServer) create(t *testing.T, userID, start, end string) model.Booking {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/spots/1/bookings", userID,
		`{"startDate":"`+start+`","endDate":"`+end+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env bookingEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t)

	b := s.create(t, "renter", "2026-01-10", "2026-01-12")
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "1", b.SpotID)
	assert.Equal(t, "renter", b.UserID)
	assert.Equal(t, "2026-01-10", b.StartDate.Format(model.DateLayout))
}

func TestCreateBooking_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", "", "/api/v1/spots/1/bookings", `{"startDate":"2026-01-10","endDate":"2026-01-12"}`, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"owner", "owner", "/api/v1/spots/1/bookings", `{"startDate":"2026-01-10","endDate":"2026-01-12"}`, http.StatusForbidden, apperrors.CodeSelfBookingForbidden},
		{"unknown spot", "renter", "/api/v1/spots/9/bookings", `{"startDate":"2026-01-10","endDate":"2026-01-12"}`, http.StatusNotFound, apperrors.CodeNotFound},
		{"inverted", "renter", "/api/v1/spots/1/bookings", `{"startDate":"2026-01-12","endDate":"2026-01-10"}`, http.StatusBadRequest, apperrors.CodeInvalidRange},
		{"bad date", "renter", "/api/v1/spots/1/bookings", `{"startDate":"01/10/2026","endDate":"2026-01-12"}`, http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"missing end", "renter", "/api/v1/spots/1/bookings", `{"startDate":"2026-01-10"}`, http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"unknown field", "renter", "/api/v1/spots/1/bookings", `{"startDate":"2026-01-10","endDate":"2026-01-12","userId":"x"}`, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"malformed json", "renter", "/api/v1/spots/1/bookings", `{"startDate":`, http.StatusBadRequest, apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, tt.path, tt.userID, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestCreateBooking_Conflict(t *testing.T) {
	s := newTestServer(t)
	first := s.create(t, "2", "2026-01-10", "2026-01-12")

	rec := s.do(t, http.MethodPost, "/api/v1/spots/1/bookings", "3", `{"startDate":"2026-01-11","endDate":"2026-01-13"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeConflict, body.Code)
	assert.Equal(t, first.ID, body.Details["booking_id"])
	assert.Equal(t, "2026-01-10", body.Details["start_date"])
}

func TestEditBooking(t *testing.T) {
	s := newTestServer(t)
	b := s.create(t, "renter", "2026-01-10", "2026-01-12")

	rec := s.do(t, http.MethodPut, "/api/v1/bookings/"+b.ID, "owner", `{"startDate":"2026-01-11","endDate":"2026-01-13"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeForbidden, errorCode(t, rec))

	rec = s.do(t, http.MethodPut, "/api/v1/bookings/"+b.ID, "renter", `{"startDate":"2026-01-11","endDate":"2026-01-13"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env bookingEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "2026-01-13", env.Data.EndDate.Format(model.DateLayout))

	rec = s.do(t, http.MethodPut, "/api/v1/bookings/missing", "renter", `{"startDate":"2026-01-11","endDate":"2026-01-13"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t)
	b := s.create(t, "renter", "2026-01-10", "2026-01-12")

	rec := s.do(t, http.MethodDelete, "/api/v1/bookings/"+b.ID, "stranger", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/bookings/"+b.ID, "renter", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/bookings/"+b.ID, "renter", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListForSpot_RedactsForNonOwners(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "renter", "2026-01-10", "2026-01-12")

	rec := s.do(t, http.MethodGet, "/api/v1/spots/1/bookings", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ownerView listEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ownerView))
	require.Len(t, ownerView.Data.Bookings, 1)

	var full map[string]any
	require.NoError(t, json.Unmarshal(ownerView.Data.Bookings[0], &full))
	assert.Equal(t, "renter", full["userId"])

	rec = s.do(t, http.MethodGet, "/api/v1/spots/1/bookings", "someone", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var publicView listEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&publicView))
	require.Len(t, publicView.Data.Bookings, 1)

	var redacted map[string]any
	require.NoError(t, json.Unmarshal(publicView.Data.Bookings[0], &redacted))
	assert.Equal(t, map[string]any{"spotId": "1", "startDate": "2026-01-10", "endDate": "2026-01-12"}, redacted)
}

func TestListMine(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "renter", "2026-01-20", "2026-01-22")
	s.create(t, "renter", "2026-01-10", "2026-01-12")
	s.create(t, "other", "2026-01-14", "2026-01-16")

	rec := s.do(t, http.MethodGet, "/api/v1/bookings/current", "renter", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var env listEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Len(t, env.Data.Bookings, 2)

	var first model.Booking
	require.NoError(t, json.Unmarshal(env.Data.Bookings[0], &first))
	assert.Equal(t, "2026-01-10", first.StartDate.Format(model.DateLayout))
}

func TestHealthHandler(t *testing.T) {
	healthy := contracts.HealthCheck{Name: "mongo", Ping: func(context.Context) error { return nil }}
	broken := contracts.HealthCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }}

	tests := []struct {
		name       string
		checks     []contracts.HealthCheck
		path       string
		wantStatus int
		wantState  string
	}{
		{"liveness ignores checks", []contracts.HealthCheck{broken}, "/health", http.StatusOK, "ok"},
		{"ready when all pass", []contracts.HealthCheck{healthy}, "/ready", http.StatusOK, "ready"},
		{"unavailable when one fails", []contracts.HealthCheck{healthy, broken}, "/ready", http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			NewHealthHandler(logger.Discard(), tt.checks...).RegisterRoutes(router)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantState, resp.Status)
		})
	}
}
