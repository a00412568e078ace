package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surpriset/market-parser/internal/events"
	"github.com/surpriset/market-parser/internal/models"
	"github.com/surpriset/market-parser/internal/observability"
	"github.com/surpriset/market-parser/internal/ratelimit"
	"github.com/surpriset/market-parser/internal/sites"
)

// Escalation stage names, in order. Each stage runs at most once per parse;
// the chain never loops.
const (
	StageCascade       = "cascade"
	StageReloadCascade = "reload_cascade"
	StageDOMFallback   = "dom_fallback"
	StageAggressive    = "aggressive"
)

// Engine turns a product URL into a canonical record: site selection, page
// acquisition, anti-block guard, extraction cascade with bounded reload
// escalation, then field normalization.
type Engine struct {
	acquirer  Acquirer
	publisher *events.Publisher
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	settle    time.Duration

	full       *Cascade
	domOnly    *Cascade
	aggressive *Cascade
}

// Options tunes engine behavior; zero values take defaults.
type Options struct {
	// SettleDelay is the pause before the single reload attempt, giving
	// late-loading state scripts a chance before the page is thrown away.
	SettleDelay time.Duration

	// Limiter paces navigation per site. Nil disables pacing.
	Limiter ratelimit.Limiter
}

func NewEngine(acquirer Acquirer, publisher *events.Publisher, logger *slog.Logger, opts *Options) *Engine {
	settle := 3 * time.Second
	var limiter ratelimit.Limiter = ratelimit.Nop{}
	if opts != nil {
		if opts.SettleDelay > 0 {
			settle = opts.SettleDelay
		}
		if opts.Limiter != nil {
			limiter = opts.Limiter
		}
	}
	return &Engine{
		acquirer:   acquirer,
		publisher:  publisher,
		limiter:    limiter,
		logger:     logger.With("component", "engine"),
		settle:     settle,
		full:       NewCascade(CascadeStrategies(), logger),
		domOnly:    NewCascade(DOMStrategies(), logger),
		aggressive: NewCascade(AggressiveStrategies(), logger),
	}
}

// Parse extracts a product record from the page behind rawURL. It returns
// either a record with a validated title or one of the four taxonomy
// errors; there are no partial results.
func (e *Engine) Parse(ctx context.Context, rawURL string) (*models.ProductRecord, error) {
	started := time.Now()

	profile, err := sites.Select(rawURL)
	if err != nil {
		observability.ParsesTotal.WithLabelValues("unknown", "unsupported").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMarketplace, err)
	}

	logger := e.logger.With("site", profile.Name, "session", uuid.NewString())
	logger.Info("parse started", "url", rawURL)

	if err := e.limiter.Wait(ctx, profile.Name); err != nil {
		observability.ParsesTotal.WithLabelValues(profile.Name, "error").Inc()
		return nil, fmt.Errorf("waiting for navigation slot: %w", err)
	}

	rec, strategy, stages, err := e.parseSession(ctx, profile, rawURL, logger)

	switch {
	case errors.Is(err, ErrBlockedByAntiBot):
		e.limiter.ReportBlocked(profile.Name)
	case err == nil:
		e.limiter.ReportOK(profile.Name)
	}

	outcome := outcomeLabel(err)
	observability.ParsesTotal.WithLabelValues(profile.Name, outcome).Inc()
	observability.ParseDuration.WithLabelValues(profile.Name).Observe(time.Since(started).Seconds())
	e.publisher.PublishParseOutcome(ctx, events.ParseOutcome{
		URL:        rawURL,
		Site:       profile.Name,
		Strategy:   strategy,
		Outcome:    outcome,
		Stages:     stages,
		DurationMS: time.Since(started).Milliseconds(),
	})

	if err != nil {
		logger.Warn("parse failed", "outcome", outcome, "stages", stages, "error", err)
		return nil, err
	}

	logger.Info("parse finished",
		"strategy", strategy,
		"title", rec.Title,
		"price", rec.Price,
		"images", len(rec.Images),
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return rec, nil
}

func (e *Engine) parseSession(ctx context.Context, profile *sites.Profile, rawURL string, logger *slog.Logger) (*models.ProductRecord, string, []string, error) {
	page, err := e.acquirer.Acquire(ctx, profile.CleanURL(rawURL))
	if err != nil {
		if errors.Is(err, ErrPageLoadTimeout) {
			return nil, "", nil, err
		}
		if isTimeout(err) {
			return nil, "", nil, fmt.Errorf("%w: %v", ErrPageLoadTimeout, err)
		}
		return nil, "", nil, fmt.Errorf("acquire page: %w", err)
	}
	defer page.Close()

	// The guard is cheap and runs before any extraction work; redirect to a
	// challenge page means the session is burned.
	if profile.Blocked(page.URL()) {
		return nil, "", nil, fmt.Errorf("%w: resolved to %s", ErrBlockedByAntiBot, page.URL())
	}

	raw, strategy, stages, err := e.escalate(ctx, page, profile, logger)
	if err != nil {
		return nil, "", stages, err
	}
	if raw == nil {
		// Stages bail out quietly on a dead context, so an empty result
		// may be the deadline firing, not the page lacking data.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", stages, fmt.Errorf("%w: %v", ErrPageLoadTimeout, ctxErr)
		}
		return nil, "", stages, fmt.Errorf("%w: stages %s exhausted", ErrProductDataNotFound, strings.Join(stages, ","))
	}

	rec := Normalize(raw, profile)

	// A high-trust source that saw the title but not the gallery or price
	// gets supplemented from selectors; existing fields are never replaced.
	if Incomplete(rec) && strategy != StrategyDOM && strategy != StrategyAggressiveDOM {
		if domRaw, err := runDOM(ctx, page, profile); err == nil && domRaw != nil {
			Merge(rec, Normalize(domRaw, profile))
		}
	}

	if problems := rec.Validate(); len(problems) > 0 {
		return nil, strategy, stages, fmt.Errorf("%w: %s", ErrProductDataNotFound, strings.Join(problems, "; "))
	}
	return rec, strategy, stages, nil
}

// escalate walks the bounded stage chain: full cascade, one reload plus
// cascade, selectors only, then aggressive selectors. Each stage runs at
// most once.
func (e *Engine) escalate(ctx context.Context, page Page, profile *sites.Profile, logger *slog.Logger) (RawProduct, string, []string, error) {
	stages := []string{StageCascade}
	if raw, strategy := e.full.Run(ctx, page, profile); raw != nil {
		return raw, strategy, stages, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, "", stages, fmt.Errorf("%w: %v", ErrPageLoadTimeout, err)
	}

	logger.Info("cascade empty, reloading once")
	e.sleep(ctx)
	stages = append(stages, StageReloadCascade)
	if err := page.Reload(ctx); err != nil {
		// A failed reload still leaves the original DOM to pick over.
		logger.Warn("reload failed, continuing with current page", "error", err)
	} else if profile.Blocked(page.URL()) {
		return nil, "", stages, fmt.Errorf("%w: reload resolved to %s", ErrBlockedByAntiBot, page.URL())
	} else {
		if raw, strategy := e.full.Run(ctx, page, profile); raw != nil {
			return raw, strategy, stages, nil
		}
	}

	// Reloads sometimes lose the state objects entirely; go straight at
	// the markup.
	stages = append(stages, StageDOMFallback)
	if raw, strategy := e.domOnly.Run(ctx, page, profile); raw != nil {
		return raw, strategy, stages, nil
	}

	stages = append(stages, StageAggressive)
	if raw, strategy := e.aggressive.Run(ctx, page, profile); raw != nil {
		return raw, strategy, stages, nil
	}

	return nil, "", stages, nil
}

func (e *Engine) sleep(ctx context.Context) {
	select {
	case <-time.After(e.settle):
	case <-ctx.Done():
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBlockedByAntiBot):
		return "blocked"
	case errors.Is(err, ErrPageLoadTimeout):
		return "timeout"
	case errors.Is(err, ErrProductDataNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedMarketplace):
		return "unsupported"
	default:
		return "error"
	}
}
