package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Trigger запускает внеочередной цикл опроса.
type Trigger interface {
	Trigger() bool
}

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
	srv    *http.Server
}

// NewServer создаёт HTTP сервер со служебными маршрутами.
// Пустой adminToken отключает /admin/poll.
func NewServer(logger zerolog.Logger, trigger Trigger, adminToken string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if trigger != nil && adminToken != "" {
		r.Post("/admin/poll", func(w http.ResponseWriter, req *http.Request) {
			got := req.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if !trigger.Trigger() {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte("already scheduled"))
				return
			}
			logger.Info().Str("request_id", middleware.GetReqID(req.Context())).Msg("http: внеочередной опрос запрошен")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("scheduled"))
		})
	}
	return &Server{
		Router: r,
		log:    logger,
		srv: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
	}
}

// Start слушает addr и блокируется до остановки. Если Shutdown уже был
// вызван, Start сразу возвращает nil.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP сервер запущен")
	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown позволяет корректно завершить работу.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
