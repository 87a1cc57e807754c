package dashboard

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/preview"
)

// Router builds the HTTP routes served by Start.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/", s.handleRoot)
	router.Get("/health", s.handleHealth)
	router.Get("/ws", s.handleWebSocket)
	router.Get("/preview", s.handlePreview)
	router.Get("/preview/rendered", s.handlePreviewRendered)

	router.Route("/api", func(r chi.Router) {
		r.Use(s.requireData)

		r.Get("/commands", s.handleCommands)
		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)
			r.Post("/", s.handleAddItem)
			r.Post("/reload", s.handleReload)
			r.Put("/{id}", s.handleUpdateItem)
			r.Delete("/{id}", s.handleRemoveItem)
		})
	})

	return router
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.ctrl == nil {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"clients": s.ClientCount(),
		"stats":   s.Stats(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, preview.LivePage(s.Preview().Text, "/ws"))
}

func (s *Server) handlePreviewRendered(w http.ResponseWriter, r *http.Request) {
	doc, err := preview.RenderDocument("Preview", []byte(s.Preview().Text))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(doc)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Duo</title>
</head>
<body>
    <h1>Duo</h1>
    <p>Items API: <a href="/api/items">/api/items</a> (<a href="/api/commands">commands</a>)</p>
    <p>Markdown preview: <a href="/preview">/preview</a></p>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, html.EscapeString(r.Host))
}
