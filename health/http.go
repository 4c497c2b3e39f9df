package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the body of the detailed health endpoint.
type Response struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is one check in a Response.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Liveness answers OK while the process is serving.
func Liveness(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Readiness runs every check and answers OK, DEGRADED, or UNHEALTHY.
func Readiness(agg *Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := OverallStatus(agg.CheckAll(c.Request.Context()))
		switch status {
		case StatusHealthy:
			c.String(http.StatusOK, "OK")
		case StatusDegraded:
			c.String(http.StatusOK, "DEGRADED")
		default:
			c.String(http.StatusServiceUnavailable, "UNHEALTHY")
		}
	}
}

// Detailed runs every check and reports each result as JSON.
func Detailed(agg *Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := agg.CheckAll(c.Request.Context())
		status := OverallStatus(results)

		resp := Response{
			Status:    status.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, r := range results {
			resp.Checks[name] = checkResponse(r)
		}
		c.JSON(httpStatus(status), resp)
	}
}

// Single reports the check named by the :name path parameter.
func Single(agg *Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := agg.Check(c.Request.Context(), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(httpStatus(r.Status), checkResponse(r))
	}
}

func checkResponse(r Result) CheckResponse {
	out := CheckResponse{
		Status:   r.Status.String(),
		Message:  r.Message,
		Duration: r.Duration.String(),
		Details:  r.Details,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

// Register mounts /healthz, /readyz, /health, and /health/:name on r.
func Register(r gin.IRouter, agg *Aggregator) {
	r.GET("/healthz", Liveness)
	r.GET("/readyz", Readiness(agg))
	r.GET("/health", Detailed(agg))
	r.GET("/health/:name", Single(agg))
}
