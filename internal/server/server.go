// Package server exposes the meal plan lifecycle over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/pathakanu/mealremind/internal/mealplan"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/rs/zerolog"
)

// Server is the HTTP front of the meal plan service.
type Server struct {
	router *chi.Mux
}

// New wires the routes. Authentication is left to the surrounding gateway.
func New(plans *mealplan.Service, reminders *reminder.Manager, contacts repository.ContactRepository, log zerolog.Logger) *Server {
	h := &handler{
		plans:     plans,
		reminders: reminders,
		contacts:  contacts,
		validate:  validator.New(),
		log:       log,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Route("/meal-plans", func(r chi.Router) {
		r.Post("/", h.createPlan)
		r.Route("/{planID}", func(r chi.Router) {
			r.Get("/", h.getPlan)
			r.Delete("/", h.deletePlan)
			r.Get("/reminders", h.planReminders)
			r.Patch("/pause", h.setPause)
			r.Patch("/block", h.setBlock)
			r.Post("/activate", h.activate)

			r.Route("/days/{dayID}/meals", func(r chi.Router) {
				r.Post("/", h.addMeal)
				r.Route("/{mealID}", func(r chi.Router) {
					r.Patch("/", h.updateMeal)
					r.Delete("/", h.removeMeal)
					r.Post("/dishes", h.addDishes)
					r.Delete("/dishes/{dishID}", h.removeDish)
					r.Post("/tracking", h.trackMeal)
				})
			})
		})
	})

	router.Route("/reminders/{reminderID}", func(r chi.Router) {
		r.Get("/", h.getReminder)
		r.Delete("/", h.cancelReminder)
	})

	router.Route("/users/{userID}", func(r chi.Router) {
		r.Put("/contact", h.putContact)
		r.Get("/reminders", h.userReminders)
		r.Post("/reminders/cleanup", h.cleanup)
	})

	return &Server{router: router}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}
