package main

import (
	"drawdeck/handlers/api/guest"
	"drawdeck/handlers/api/projects"
	"drawdeck/handlers/auth"
	authMiddleware "drawdeck/middleware"
	"drawdeck/realtime"
	"drawdeck/stores"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupRouter(store stores.Store, hub *realtime.Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Guest-Id", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", auth.HandleLogin)
		r.Get("/google/callback", auth.HandleCallback(store))
		r.Post("/refresh", auth.HandleRefresh(store))
		r.Post("/logout", auth.HandleLogout)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Get("/me", auth.HandleMe(store))
		})
	})

	r.Route("/api/projects", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT)
		r.Get("/", projects.HandleList(store))
		r.Post("/", projects.HandleCreate(store))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", projects.HandleGet(store))
			r.Put("/", projects.HandleUpdate(store))
			r.Delete("/", projects.HandleDelete(store))
			r.Post("/share", projects.HandleShare(store))
		})
	})

	r.Route("/guest", func(r chi.Router) {
		r.Post("/token", guest.HandleToken())
		r.Get("/projects", guest.HandleList(store))
		r.Post("/projects", guest.HandleCreate(store))
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", guest.HandleGet(store))
			r.Put("/", guest.HandleUpdate(store))
		})
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Post("/claim", guest.HandleClaim(store))
		})
	})

	r.Get("/ws", hub.HandleWS())

	return r
}

func waitForShutdown() {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC
	logrus.Info("Shutting down...")
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	store := stores.GetStore()
	hub := realtime.NewHub(store)

	r := setupRouter(store, hub)

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown()
}
