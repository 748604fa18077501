package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/pipeline"
	"github.com/gin-gonic/gin"
)

type pipelineFunc func(c *gin.Context, req *pipeline.Request) (*pipeline.State, *apierr.Error)

// summarize handles POST /api/github-summarizer
func (s *Server) summarize(c *gin.Context) {
	s.runPipeline(c, func(c *gin.Context, req *pipeline.Request) (*pipeline.State, *apierr.Error) {
		return s.pipeline.Summarize(c.Request.Context(), req)
	})
}

// validateKey handles POST /api/validate-key
func (s *Server) validateKey(c *gin.Context) {
	s.runPipeline(c, func(c *gin.Context, req *pipeline.Request) (*pipeline.State, *apierr.Error) {
		return s.pipeline.ValidateKey(c.Request.Context(), req)
	})
}

func (s *Server) runPipeline(c *gin.Context, run pipelineFunc) {
	body, err := readBody(c.Request)
	if err != nil {
		s.renderError(c, err)
		return
	}

	st, e := run(c, &pipeline.Request{
		Header:    c.Request.Header,
		Body:      body,
		ClientIP:  c.ClientIP(),
		RequestID: c.GetString(ctxRequestID),
	})
	if st != nil {
		setRateLimitHeaders(c, st.Decision)
	}
	if e != nil {
		s.renderError(c, e)
		return
	}
	c.JSON(http.StatusOK, st.Response)
}

func readBody(r *http.Request) ([]byte, *apierr.Error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.New(apierr.MalformedBody, "Request body is too large")
		}
		return nil, apierr.Wrap(apierr.MalformedBody, "Request body could not be read", err)
	}
	return body, nil
}
