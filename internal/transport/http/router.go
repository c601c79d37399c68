package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
)

type Deps struct {
	Handler        *Handler
	Verifier       httpmw.PrincipalVerifier
	Users          httpmw.UserEnsurer
	WS             http.HandlerFunc
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.WithRequestLogger)
	r.Use(httpmw.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// the gateway authenticates on its own and degrades to guests
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	h := d.Handler
	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(d.Verifier))
		if d.Users != nil {
			pr.Use(httpmw.UserSyncMiddleware(d.Users))
		}
		pr.Use(middlewareChi.Timeout(d.RequestTimeout))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Get("/messages", h.ListMessages)
				rr.Post("/favorite", h.AddFavorite)
				rr.Delete("/favorite", h.RemoveFavorite)
				rr.Post("/visit", h.VisitRoom)
				rr.Get("/notifications", h.NotificationEligibility)
			})
		})

		pr.Route("/push/endpoints", func(pe chi.Router) {
			pe.Post("/", h.RegisterEndpoint)
			pe.Delete("/", h.UnregisterEndpoint)
		})
	})

	return r
}
