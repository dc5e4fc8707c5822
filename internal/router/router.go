package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	httphandler "crm-notification-service/internal/handler/http"
	wshandler "crm-notification-service/internal/handler/ws"
	"crm-notification-service/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the notification service
func SetupRoutes(
	r chi.Router,
	h *httphandler.NotificationHandler,
	wsHandler *wshandler.WSHandler,
	jwtSecret string,
	rdb *redis.Client,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimiter(rdb, 100, time.Minute, 10*time.Minute, "notif:rl"))

	auth := middleware.RequireAuth(jwtSecret)

	// ============================================================
	// Notification routes (all require auth)
	// ============================================================
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(auth)

		r.Get("/", h.ListNotifications)
		r.Get("/unread", h.ListUnread)
		r.Get("/unread/count", h.CountUnread)
		r.Post("/read-all", h.MarkAllRead)
		r.Patch("/{id}/read", h.MarkAsRead)
		r.Patch("/{id}/snooze", h.Snooze)
		r.Patch("/{id}/mute", h.Mute)
		r.Patch("/{id}/unmute", h.Unmute)
		r.Delete("/{id}", h.Delete)

		r.Get("/preferences", h.GetPreference)
		r.Put("/preferences", h.UpdatePreference)
		r.Post("/preferences/muted-entities", h.MuteEntity)
		r.Delete("/preferences/muted-entities", h.UnmuteEntity)

		r.Post("/push-subscriptions", h.RegisterPushSubscription)
		r.Delete("/push-subscriptions", h.UnregisterPushSubscription)

		// WebSocket endpoint
		r.Get("/ws", wsHandler.HandleNotifications)
	})

	// Internal ingest for out-of-process producers; exposed on the private
	// network only, no user auth.
	r.Post("/internal/v1/notify", h.Notify)

	return r
}
