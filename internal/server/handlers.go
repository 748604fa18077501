package server

import (
	"net/http"
	"strconv"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/models"
	"github.com/antigravity/summarizer-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// 基础handlers
func (s *Server) healthCheck(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.limiter != nil {
		keys, ips := s.limiter.Size()
		resp["tracked_keys"] = keys
		resp["tracked_ips"] = ips
	}
	c.JSON(200, resp)
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func (s *Server) notFound(c *gin.Context) {
	s.renderError(c, apierr.New(apierr.NotFound, "Route not found"))
}

var authMethods = []gin.H{
	{"type": "bearer", "header": "Authorization", "format": "Bearer <api-key>"},
	{"type": "header", "header": "apikey", "format": "<api-key>"},
}

func (s *Server) summarizeDocs(c *gin.Context) {
	c.JSON(200, gin.H{
		"endpoint":    routeSummarize,
		"method":      "POST",
		"description": "Summarizes a GitHub repository from its README and enriches it with repository metadata.",
		"auth":        authMethods,
		"body": gin.H{
			"githubUrl": gin.H{
				"type":        "string",
				"required":    true,
				"description": "Absolute URL of a repository on " + s.cfg.GitHub.Host,
				"example":     "https://github.com/octocat/Hello-World",
			},
		},
		"response": []string{"modelUsed", "readmeSource", "summary", "coolFacts", "toolsUsed",
			"stars", "latestVersion", "licenseType", "websiteUrl", "usage"},
		"limits": gin.H{
			"key": s.cfg.RateLimit.Key,
			"ip":  s.cfg.RateLimit.IP,
		},
	})
}

func (s *Server) validateKeyDocs(c *gin.Context) {
	c.JSON(200, gin.H{
		"endpoint":    routeValidateKey,
		"method":      "POST",
		"description": "Checks an API key and returns its usage.",
		"auth": append(append([]gin.H{}, authMethods...),
			gin.H{"type": "body", "field": "apiKey", "format": "<api-key>"}),
		"body": gin.H{
			"apiKey": gin.H{"type": "string", "required": false, "description": "Used when no header credential is sent"},
		},
	})
}

// renderError writes the structured error body.
func (s *Server) renderError(c *gin.Context, e *apierr.Error) {
	resp := models.ErrorResponse{
		Error:     string(e.Kind),
		Message:   e.Message,
		Field:     e.Field,
		Reason:    e.Reason,
		RequestID: c.GetString(ctxRequestID),
	}
	if e.Status() == http.StatusTooManyRequests && e.RetryAfter > 0 {
		secs := retrySeconds(e)
		resp.RetryAfterSeconds = secs
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	c.AbortWithStatusJSON(e.Status(), resp)
}

// retrySeconds rounds up so clients never retry early.
func retrySeconds(e *apierr.Error) int {
	secs := int(e.RetryAfter.Seconds())
	if float64(secs) < e.RetryAfter.Seconds() {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func setRateLimitHeaders(c *gin.Context, d *ratelimit.Decision) {
	if d == nil || d.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
