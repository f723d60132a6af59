package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servemate/service-booking/internal/application"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/conflict"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/events"
	"github.com/servemate/service-booking/internal/handler"
	"github.com/servemate/service-booking/internal/metrics"
	"github.com/servemate/service-booking/internal/scheduler"
	"github.com/servemate/service-booking/internal/store"
)

var base = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Limit   string `json:"limit"`
	} `json:"error"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	clock  *testclock.Clock
}

func newTestServer(t *testing.T, limits quota.Limits) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	clk := testclock.NewClock(base)
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	log := zap.NewNop()
	svc := application.NewBookingService(mem, quota.NewLedger(limits), conflict.NewResolver(conflict.AfterWinner{}),
		events.NewLogAuditSink(log), clk, recorder, log, application.DefaultOptions())
	sweeper := scheduler.NewTimeoutScheduler(mem, svc, nil, clk, recorder, log, scheduler.SweepConfig{
		Interval: time.Minute, InactionThreshold: 3 * time.Hour, ProposalTTL: 24 * time.Hour, BatchSize: 50,
	})
	reconciler := scheduler.NewReconciler(mem, clk, recorder, log, time.Hour)

	r := gin.New()
	r.Use(handler.RequestIDMiddleware(), handler.RecoveryMiddleware(log))
	handler.RegisterHealthRoutes(r, registry)
	handler.NewBookingHandler(svc).RegisterRoutes(&r.RouterGroup)
	handler.NewServiceHandler(svc).RegisterRoutes(&r.RouterGroup)
	handler.NewAdminBookingHandler(svc, reconciler, sweeper).RegisterRoutes(&r.RouterGroup)

	return &testServer{t: t, router: r, clock: clk}
}

func (s *testServer) do(method, path string, actor *booking.Actor, body interface{}) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(handler.HeaderActorRole, string(actor.Role))
		if actor.ID != uuid.Nil {
			req.Header.Set(handler.HeaderActorID, actor.ID.String())
		}
		req.Header.Set(handler.HeaderActorName, actor.Name)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (s *testServer) createBooking(u *booking.Actor, serviceID uuid.UUID, start time.Duration) application.BookingDTO {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/api/v1/bookings", u, map[string]interface{}{
		"service_id":   serviceID,
		"window_start": base.Add(start),
		"window_end":   base.Add(start + time.Hour),
		"description":  "leaking tap",
	})
	require.Equal(s.t, http.StatusCreated, code, string(resp.Data))
	var dto application.BookingDTO
	require.NoError(s.t, json.Unmarshal(resp.Data, &dto))
	return dto
}

func (s *testServer) activate(p *booking.Actor) uuid.UUID {
	s.t.Helper()
	serviceID := uuid.New()
	code, _ := s.do(http.MethodPost, "/api/v1/services/"+serviceID.String()+"/activate", p, nil)
	require.Equal(s.t, http.StatusOK, code)
	return serviceID
}

func newActor(role booking.ActorRole) *booking.Actor {
	return &booking.Actor{ID: uuid.New(), Name: string(role), Role: role}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())

	code, _ := s.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActorHeaders(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())

	code, resp := s.do(http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	code, _ = s.do(http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), &booking.Actor{Role: booking.ActorUser}, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "user without id")

	code, resp = s.do(http.MethodPost, "/api/v1/bookings", newActor(booking.ActorProvider), map[string]string{})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	code, _ = s.do(http.MethodGet, "/api/v1/admin/counters", newActor(booking.ActorUser), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())
	p, u := newActor(booking.ActorProvider), newActor(booking.ActorUser)
	serviceID := s.activate(p)
	bk := s.createBooking(u, serviceID, 24*time.Hour)
	assert.Equal(t, string(booking.StatusPendingProviderReview), bk.Status)
	path := "/api/v1/bookings/" + bk.ID.String()

	code, resp := s.do(http.MethodPost, path+"/start", p, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)

	code, _ = s.do(http.MethodPost, path+"/accept", p, map[string]interface{}{"price_cents": 3000})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, path+"/pay", u, map[string]string{"payment_ref": "pay_9"})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, path+"/start", p, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, path+"/done", p, nil)
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(http.MethodPost, path+"/confirm", u, nil)
	require.Equal(t, http.StatusOK, code)

	var dto application.BookingDTO
	require.NoError(t, json.Unmarshal(resp.Data, &dto))
	assert.Equal(t, string(booking.StatusCompleted), dto.Status)

	code, _ = s.do(http.MethodGet, path, newActor(booking.ActorUser), nil)
	assert.Equal(t, http.StatusForbidden, code, "stranger")
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())
	p, u := newActor(booking.ActorProvider), newActor(booking.ActorUser)
	serviceID := s.activate(p)
	bk := s.createBooking(u, serviceID, 24*time.Hour)

	code, resp := s.do(http.MethodGet, "/api/v1/bookings/not-a-uuid", u, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	code, _ = s.do(http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), u, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, "/api/v1/bookings/"+bk.ID.String()+"/accept", p, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code, "missing price")

	code, resp = s.do(http.MethodPost, "/api/v1/bookings", u, map[string]interface{}{
		"service_id":   serviceID,
		"window_start": base.Add(2 * time.Hour),
		"window_end":   base.Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/bookings/"+bk.ID.String()+"/dispute", u, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code, "missing reason")
}

func TestQuotaExceededCarriesLimit(t *testing.T) {
	limits := quota.DefaultLimits()
	limits.MaxAcceptedBookings = 1
	s := newTestServer(t, limits)
	p := newActor(booking.ActorProvider)
	serviceID := s.activate(p)
	first := s.createBooking(newActor(booking.ActorUser), serviceID, 24*time.Hour)

	code, _ := s.do(http.MethodPost, "/api/v1/bookings/"+first.ID.String()+"/accept", p, map[string]int{"price_cents": 100})
	require.Equal(t, http.StatusOK, code)
	second := s.createBooking(newActor(booking.ActorUser), serviceID, 48*time.Hour)

	code, resp := s.do(http.MethodPost, "/api/v1/bookings/"+second.ID.String()+"/accept", p, map[string]int{"price_cents": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "QUOTA_EXCEEDED", resp.Error.Code)
	assert.Equal(t, string(quota.MaxAcceptedBookings), resp.Error.Limit)
}

func TestProposalFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())
	p, u := newActor(booking.ActorProvider), newActor(booking.ActorUser)
	serviceID := s.activate(p)
	winner := s.createBooking(newActor(booking.ActorUser), serviceID, 24*time.Hour)
	loser := s.createBooking(u, serviceID, 24*time.Hour)

	code, _ := s.do(http.MethodPost, "/api/v1/bookings/"+winner.ID.String()+"/accept", p, map[string]int{"price_cents": 100})
	require.Equal(t, http.StatusOK, code)

	code, resp := s.do(http.MethodGet, "/api/v1/bookings/"+loser.ID.String()+"/proposal", u, nil)
	require.Equal(t, http.StatusOK, code)
	var proposal application.ProposalDTO
	require.NoError(t, json.Unmarshal(resp.Data, &proposal))

	code, _ = s.do(http.MethodPost, "/api/v1/proposals/"+proposal.ID.String()+"/respond", u, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code, "accept is required")

	code, resp = s.do(http.MethodPost, "/api/v1/proposals/"+proposal.ID.String()+"/respond", u, map[string]bool{"accept": false})
	require.Equal(t, http.StatusOK, code)
	var dto application.BookingDTO
	require.NoError(t, json.Unmarshal(resp.Data, &dto))
	assert.Equal(t, string(booking.StatusCancelled), dto.Status)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, quota.DefaultLimits())
	p, u := newActor(booking.ActorProvider), newActor(booking.ActorUser)
	bk := s.createBooking(u, s.activate(p), 24*time.Hour)
	admin := &booking.Actor{Name: "ops", Role: booking.ActorSystem}

	s.clock.Advance(3 * time.Hour)
	code, resp := s.do(http.MethodPost, "/api/v1/admin/sweep", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var report scheduler.SweepReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 1, report.TimedOut)

	code, resp = s.do(http.MethodGet, "/api/v1/bookings/"+bk.ID.String(), u, nil)
	require.Equal(t, http.StatusOK, code)
	var dto application.BookingDTO
	require.NoError(t, json.Unmarshal(resp.Data, &dto))
	assert.Equal(t, string(booking.StatusAutoCancelled), dto.Status)

	code, resp = s.do(http.MethodPost, "/api/v1/admin/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var rec struct {
		Repaired int `json:"repaired"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Zero(t, rec.Repaired)

	code, resp = s.do(http.MethodGet, "/api/v1/admin/stats/bookings", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var stats application.BookingStatsDTO
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, int64(1), stats.TotalBookings)

	code, resp = s.do(http.MethodGet, "/api/v1/admin/counters", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var counters map[string]int64
	require.NoError(t, json.Unmarshal(resp.Data, &counters))
	assert.NotEmpty(t, counters)
}
