package opsserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type fakeReconciler struct{ count int }

func (f fakeReconciler) LiveCount() int { return f.count }

func TestHealthzOK(t *testing.T) {
	s := New(fakePinger{}, fakeReconciler{count: 3})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthzStoreError(t *testing.T) {
	s := New(fakePinger{err: errors.New("down")}, fakeReconciler{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsLiveCount(t *testing.T) {
	s := New(fakePinger{}, fakeReconciler{count: 5})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"live_devices":5}`, rec.Body.String())
}
