package auth

import (
	"context"
	"net/http"

	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/httputil"
	"github.com/R3E-Network/applyflow/internal/logging"
	"github.com/R3E-Network/applyflow/internal/metrics"
)

// Resolver tries strategies in order. The first strategy that does not skip
// decides the outcome; when every strategy skips the caller is unauthorized.
type Resolver struct {
	strategies []Strategy
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(logger *logging.Logger, m *metrics.Metrics, strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		logger:     logger,
		metrics:    m,
	}
}

// Resolve identifies the caller of r.
func (rv *Resolver) Resolve(ctx context.Context, r *http.Request) (*Credential, error) {
	for _, s := range rv.strategies {
		res := s.Resolve(ctx, r)
		rv.record(s.Channel(), res.Outcome)

		switch res.Outcome {
		case Skipped:
			continue
		case Resolved:
			return res.Credential, nil
		default:
			if res.Err == nil {
				return nil, errors.Unauthorized("")
			}
			return nil, res.Err
		}
	}
	rv.record("", Skipped)
	return nil, errors.Unauthorized("")
}

func (rv *Resolver) record(channel Channel, outcome Outcome) {
	if rv.metrics != nil {
		rv.metrics.RecordAuthResolution(string(channel), outcome.String())
	}
}

// Middleware resolves the caller before next runs. On failure it writes the
// error response and next is never called.
func (rv *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := rv.Resolve(r.Context(), r)
		if err != nil {
			rv.respondError(w, r, err)
			return
		}

		ctx := WithCredential(r.Context(), cred)
		ctx = logging.WithUserID(ctx, cred.User.ID)

		rv.logger.WithContext(ctx).WithField("channel", cred.Channel).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rv *Resolver) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	if errors.IsCode(serviceErr, errors.CodeUnauthorized) {
		rv.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
			"path":   r.URL.Path,
			"method": r.Method,
			"error":  errString(serviceErr.Err),
		})
	} else {
		rv.logger.WithContext(r.Context()).WithError(err).Error("Credential resolution failed")
	}

	httputil.WriteServiceError(w, serviceErr)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
