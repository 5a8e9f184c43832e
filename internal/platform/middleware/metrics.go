package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dentallab/labdesk/internal/platform/metrics"
)

// Metrics records request count, latency and in-flight requests. Paths are
// labelled by route template so session ids do not explode cardinality.
func Metrics(col *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if col == nil {
				return next(c)
			}
			col.InFlightGauge.Inc()
			defer col.InFlightGauge.Dec()

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(responseStatus(c, err))
			method := c.Request().Method
			col.RequestsTotal.WithLabelValues(method, route, status).Inc()
			col.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
