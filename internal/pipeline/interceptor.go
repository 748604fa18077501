package pipeline

import (
	"context"
	"fmt"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/antigravity/summarizer-gateway/internal/auth"
	"github.com/antigravity/summarizer-gateway/internal/logger"
	"go.uber.org/zap"
)

// Handler runs stages against a request state.
type Handler func(ctx context.Context, st *State) error

// Interceptor wraps a handler. Interceptors run in list order, the first one
// outermost.
type Interceptor func(next Handler) Handler

// Chain wraps h with interceptors.
func Chain(h Handler, interceptors ...Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Recovery converts panics into UnexpectedFailure.
func Recovery(log *zap.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, st *State) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Pipeline panic",
						zap.String("stage", string(st.Stage)),
						zap.String("request_id", st.Request.RequestID),
						zap.Any("panic", r),
						zap.Stack("stack"))
					err = apierr.Wrap(apierr.UnexpectedFailure, "An unexpected error occurred",
						fmt.Errorf("panic: %v", r))
				}
			}()
			return next(ctx, st)
		}
	}
}

// SecurityMonitor logs rejected credentials with the caller's address.
func SecurityMonitor(log *zap.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, st *State) error {
			err := next(ctx, st)
			if err == nil {
				return nil
			}
			e := apierr.From(err)
			switch e.Kind {
			case apierr.MissingCredential, apierr.InvalidCredential, apierr.InactiveCredential:
				fields := []zap.Field{
					zap.String("kind", string(e.Kind)),
					logger.ClientIP(st.Request.ClientIP),
					zap.String("request_id", st.Request.RequestID),
				}
				if key := auth.Extract(auth.Credentials{Header: st.Request.Header, Body: st.body, AllowBody: true}); key != "" {
					fields = append(fields, logger.KeyPrefix(key))
				}
				log.Warn("Credential rejected", fields...)
			}
			return err
		}
	}
}

// RateLimitMonitor logs admission denials.
func RateLimitMonitor(log *zap.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, st *State) error {
			err := next(ctx, st)
			d := st.Decision
			if d == nil || d.Allowed {
				return err
			}
			fields := []zap.Field{
				zap.String("reason", d.Reason),
				zap.Duration("retry_after", d.RetryAfter),
				logger.ClientIP(st.Request.ClientIP),
				zap.String("request_id", st.Request.RequestID),
			}
			if st.Key != nil {
				fields = append(fields, zap.String("identity", st.Key.Identity()))
			}
			if d.Kind == apierr.TemporarilyBlocked {
				log.Warn("Temporarily blocked request", fields...)
			} else {
				log.Info("Rate limited request", fields...)
			}
			return err
		}
	}
}
