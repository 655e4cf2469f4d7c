// Package probe determines which catalog fields a counter actually exposes
// for a date range, before any export job is submitted.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"metrika-etl/internal/catalog"
	"metrika-etl/internal/domain"
	"metrika-etl/internal/metrika"
)

// Prober checks field availability against the Logs API.
//
// The common case costs one round trip: a single evaluate request with the
// full candidate set. If the remote refuses that request, with a client
// error or a possible=false answer, the prober degrades to evaluating each
// field individually so the unavailable subset can be named exactly.
type Prober struct {
	api     domain.LogsAPI
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// New creates a Prober.
func New(api domain.LogsAPI, cat *catalog.Catalog, logger *slog.Logger) *Prober {
	return &Prober{api: api, catalog: cat, logger: logger.With("component", "probe")}
}

// Probe returns the availability split for a source kind. Available and
// Unavailable preserve catalog declaration order. An empty Available set is
// not an error here; the orchestrator decides whether it is fatal.
func (p *Prober) Probe(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string) (domain.AvailabilityResult, error) {
	candidates := p.catalog.SourceIDs(kind)
	if len(candidates) == 0 {
		return domain.AvailabilityResult{}, domain.ErrSchema("no catalog fields declared for source %q", kind)
	}

	eval, err := p.api.Evaluate(ctx, counterID, kind, dateFrom, dateTo, candidates)
	if err == nil && eval.Possible {
		p.logger.Info("all candidate fields available",
			"source", kind,
			"fields", len(candidates),
			"expected_size", eval.ExpectedSize,
		)
		return domain.AvailabilityResult{
			Kind:         kind,
			Available:    candidates,
			ExpectedSize: eval.ExpectedSize,
		}, nil
	}
	if err != nil && !rejectedByRemote(err) {
		return domain.AvailabilityResult{}, fmt.Errorf("evaluate %s fields: %w", kind, err)
	}

	// Either a client-error rejection or a 200 with possible=false: the set
	// as a whole is refused, but individual fields may still be exportable.
	p.logger.Warn("full field set rejected, probing fields individually",
		"source", kind,
		"fields", len(candidates),
		"error", err,
	)
	return p.probeEach(ctx, counterID, kind, dateFrom, dateTo, candidates)
}

// probeEach evaluates every candidate field on its own against the same
// counter and date range, classifying each as available or unavailable.
func (p *Prober) probeEach(ctx context.Context, counterID int64, kind domain.SourceKind, dateFrom, dateTo string, candidates []string) (domain.AvailabilityResult, error) {
	result := domain.AvailabilityResult{Kind: kind, Degraded: true}
	for _, field := range candidates {
		eval, err := p.api.Evaluate(ctx, counterID, kind, dateFrom, dateTo, []string{field})
		switch {
		case err == nil && eval.Possible:
			result.Available = append(result.Available, field)
			if eval.ExpectedSize > result.ExpectedSize {
				result.ExpectedSize = eval.ExpectedSize
			}
		case err == nil || rejectedByRemote(err):
			p.logger.Debug("field unavailable", "source", kind, "field", field)
			result.Unavailable = append(result.Unavailable, field)
		default:
			// Auth failures, missing counter and transport errors are not
			// per-field answers; stop probing and propagate.
			return domain.AvailabilityResult{}, fmt.Errorf("evaluate field %s: %w", field, err)
		}
	}

	p.logger.Info("per-field probe complete",
		"source", kind,
		"available", len(result.Available),
		"unavailable", len(result.Unavailable),
	)
	return result, nil
}

// rejectedByRemote reports whether the error is a 4xx evaluate rejection,
// which classifies fields rather than signalling a broken run.
func rejectedByRemote(err error) bool {
	var apiErr *metrika.APIError
	return errors.As(err, &apiErr) && apiErr.ClientError()
}
