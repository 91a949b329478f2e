package iam

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/frostu8/nymph/cmd/nymphapi/internal/logging"
	"github.com/frostu8/nymph/cmd/nymphapi/internal/telemetry"
)

const tracerName = "nymphapi/services/iam"

// Resolver tries an ordered list of authenticators.
type Resolver struct {
	authenticators []Authenticator
	metrics        *telemetry.Metrics
	logger         logging.Logger
}

// NewResolver creates a resolver. Authenticators are tried in the given order.
func NewResolver(logger logging.Logger, metrics *telemetry.Metrics, authenticators ...Authenticator) *Resolver {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Resolver{
		authenticators: authenticators,
		metrics:        metrics,
		logger:         logger,
	}
}

// Resolve returns the first principal an authenticator resolves.
//
// Returns:
//   - (principal, nil): Authentication successful
//   - (nil, ErrUnauthenticated): every authenticator reported its credential absent
//   - (nil, *AuthError): a presented credential was rejected; later
//     authenticators are not consulted
//   - (nil, error): a backend failure
func (r *Resolver) Resolve(ctx context.Context, req AuthRequest) (*Principal, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Resolve",
		attribute.Int("authenticator_count", len(r.authenticators)),
	)
	defer span.End()

	start := time.Now()
	defer func() { r.metrics.ObserveResolve(time.Since(start)) }()

	for _, authenticator := range r.authenticators {
		scheme := string(authenticator.Scheme())

		principal, err := authenticator.Authenticate(ctx, req)
		if err != nil {
			r.metrics.RecordAuth(scheme, telemetry.OutcomeRejected)
			telemetry.AddEvent(span, "authentication.failed",
				attribute.String(telemetry.AttrAuthScheme, scheme),
			)
			telemetry.RecordError(span, err)

			var authErr *AuthError
			if !errors.As(err, &authErr) {
				r.logger.WithContext(ctx).Error("authenticator backend failure",
					logging.String("scheme", scheme),
					logging.Error(err),
				)
			}
			return nil, err
		}

		if principal == nil {
			r.metrics.RecordAuth(scheme, telemetry.OutcomeAbsent)
			continue
		}

		r.metrics.RecordAuth(scheme, telemetry.OutcomeSuccess)
		telemetry.AddEvent(span, "authentication.succeeded",
			attribute.String(telemetry.AttrAuthScheme, scheme),
			attribute.Int64(telemetry.AttrPrincipalID, principal.ID),
			attribute.Bool(telemetry.AttrPrincipalManaged, principal.Managed),
		)
		return principal, nil
	}

	r.metrics.RecordAuth("none", telemetry.OutcomeUnauthenticated)
	return nil, ErrUnauthenticated
}
