package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/services/iam"
)

// PrincipalResolver turns request credentials into a principal.
// *iam.Resolver is the production implementation.
type PrincipalResolver interface {
	Resolve(ctx context.Context, req iam.AuthRequest) (*iam.Principal, error)
}

// memo caches one resolution per request.
type memo struct {
	once      sync.Once
	resolver  PrincipalResolver
	logger    logging.Logger
	principal *iam.Principal
	err       error
}

type memoContextKey struct{}

// Authentication installs lazy, memoized credential resolution.
//
// The middleware itself never rejects a request. Handlers that need a caller
// call Principal(r); the first call runs the resolver chain and every later
// call in the same request returns the cached outcome, so storage is hit and
// signatures are verified at most once per request. Public routes never pay
// for resolution at all.
func Authentication(resolver PrincipalResolver, logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := &memo{resolver: resolver, logger: logger}
			ctx := context.WithValue(r.Context(), memoContextKey{}, m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal returns the authenticated caller of r.
//
// Returns:
//   - (principal, nil): the request carried a valid credential
//   - (nil, iam.ErrUnauthenticated): no credential, or no Authentication middleware
//   - (nil, *iam.AuthError): a presented credential was rejected
//   - (nil, error): the resolver failed
func Principal(r *http.Request) (*iam.Principal, error) {
	m, ok := r.Context().Value(memoContextKey{}).(*memo)
	if !ok {
		return nil, iam.ErrUnauthenticated
	}

	m.once.Do(func() {
		m.principal, m.err = m.resolver.Resolve(r.Context(), iam.NewAuthRequest(r))

		var authErr *iam.AuthError
		if errors.As(m.err, &authErr) {
			// Never log the credential itself.
			m.logger.WithContext(r.Context()).Warn("authentication failed",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("scheme", string(authErr.Scheme)),
				logging.String("reason", authErr.Message),
			)
		}
	})
	return m.principal, m.err
}
