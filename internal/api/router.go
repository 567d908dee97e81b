// Package api is the operator HTTP surface: manual job triggers,
// notification acknowledgment and reminders, health and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/metrics"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/scheduler"
	"github.com/nhle/quality-escalation/internal/store"
)

// Runner triggers jobs outside their cadence and reports lane state.
type Runner interface {
	RunNow(ctx context.Context, name string) (jobs.Result, error)
	Statuses() []scheduler.LaneStatus
}

// Reminders sends operator-initiated mail.
type Reminders interface {
	Send(ctx context.Context, userID, text string) error
	SendTest(ctx context.Context, to string) error
}

// Users resolves an id or email to a directory entry.
type Users interface {
	Resolve(ctx context.Context, idOrEmail string) (*model.User, error)
}

// Server holds the handler dependencies.
type Server struct {
	runner        Runner
	reminders     Reminders
	notifications store.NotificationStore
	users         Users
	log           *logrus.Entry
	validate      *validator.Validate
}

// NewServer creates the handler set.
func NewServer(
	runner Runner,
	reminders Reminders,
	notifications store.NotificationStore,
	users Users,
	log *logrus.Entry,
) *Server {
	return &Server{
		runner:        runner,
		reminders:     reminders,
		notifications: notifications,
		users:         users,
		log:           log,
		validate:      validator.New(),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Get("/jobs", s.listJobs)
		r.Post("/jobs/{job}/run", s.runJob)
		r.Post("/mail/test", s.testMail)
		r.Get("/users/{id}", s.getUser)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.listNotifications)
		r.Post("/", s.createNotification)
		r.Post("/remind", s.remind)
		r.Put("/{id}/read", s.markRead)
		r.Delete("/{id}", s.deleteNotification)
	})

	return r
}
