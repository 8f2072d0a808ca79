package api

import (
	"net/http"
	"strconv"

	"github.com/BinJu/train/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// instrument logs every request and records the API metrics. Requests are
// labelled by route pattern so ids do not blow up label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)

		evt := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			evt = s.logger.Warn()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", timer.Duration()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func routeLabel(r *http.Request) string {
	pattern := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		pattern = rctx.RoutePattern()
	}
	if pattern == "" {
		pattern = "unmatched"
	}
	return r.Method + " " + pattern
}
