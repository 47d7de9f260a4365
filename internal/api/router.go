package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/klauspost/compress/gzhttp"
)

const apiTimeout = 30 * time.Second

// NewRouter wires the API, the websocket endpoint and the host page
func NewRouter(h *Handler, ws http.HandlerFunc, staticDir string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(log.Named("http")),
		middleware.Recoverer,
	)

	// The websocket stays outside compression and the request timeout
	r.Get("/ws", ws)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)
		r.Get("/state", h.GetState)
		r.Get("/globe.svg", h.GetGlobeSVG)
		r.Get("/land.geojson", h.GetLand)
		r.Get("/airports", h.SearchAirports)
		r.Get("/airports/{key}", h.GetAirport)
	})

	r.Handle("/*", gzhttp.GzipHandler(NewStaticFileHandler(staticDir, log)))

	return r
}

// requestLogger logs one line per request through the application logger
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Debug("Request served",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.Status()),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", time.Since(start)),
				logger.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
