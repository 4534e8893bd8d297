package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type triggerStub struct {
	calls  int
	result bool
}

func (t *triggerStub) Trigger() bool {
	t.calls++
	return t.result
}

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop(), nil, "")
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("неожиданный ответ: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAdminPollRequiresToken(t *testing.T) {
	trig := &triggerStub{result: true}
	srv := NewServer(zerolog.Nop(), trig, "secret")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидали 403, получили %d", rec.Code)
	}
	if trig.calls != 0 {
		t.Fatalf("триггер не должен вызываться без токена")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
	req.Header.Set("X-Admin-Token", "secret")
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	if trig.calls != 1 {
		t.Fatalf("ожидали один вызов триггера, получили %d", trig.calls)
	}
}

func TestAdminPollConflictWhenPending(t *testing.T) {
	trig := &triggerStub{result: false}
	srv := NewServer(zerolog.Nop(), trig, "secret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
	req.Header.Set("X-Admin-Token", "secret")
	srv.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("ожидали 409, получили %d", rec.Code)
	}
}

func TestAdminPollDisabledWithoutToken(t *testing.T) {
	srv := NewServer(zerolog.Nop(), &triggerStub{result: true}, "")
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/poll", nil))
	if rec.Code == http.StatusAccepted {
		t.Fatalf("маршрут должен быть отключён без токена")
	}
}

func TestStartAfterShutdownReturns(t *testing.T) {
	srv := NewServer(zerolog.Nop(), nil, "")
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ожидали nil после остановки, получили %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("сервер продолжает работать после Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	srv := NewServer(zerolog.Nop(), nil, "")
	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ожидали nil, получили %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start не вернулся после Shutdown")
	}
}
