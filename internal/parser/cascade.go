package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/surpriset/market-parser/internal/models"
	"github.com/surpriset/market-parser/internal/observability"
	"github.com/surpriset/market-parser/internal/sites"
)

// Cascade evaluates strategies in order and accepts the first result that
// passes the usability predicate. Strategy failures are contained here:
// an error or panic from one strategy only means the next one runs.
type Cascade struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewCascade(strategies []Strategy, logger *slog.Logger) *Cascade {
	return &Cascade{
		strategies: strategies,
		logger:     logger.With("component", "cascade"),
	}
}

// Run returns the first usable raw object and the name of the strategy that
// produced it, or (nil, "") when every strategy came up empty.
func (c *Cascade) Run(ctx context.Context, page Page, profile *sites.Profile) (RawProduct, string) {
	for _, strategy := range c.strategies {
		if ctx.Err() != nil {
			return nil, ""
		}

		raw, err := c.attempt(ctx, page, profile, strategy)
		switch {
		case err != nil:
			observability.StrategyAttempts.WithLabelValues(profile.Name, strategy.Name, "error").Inc()
			c.logger.Debug("strategy failed",
				"site", profile.Name, "strategy", strategy.Name, "error", err)
		case !Usable(raw, profile):
			observability.StrategyAttempts.WithLabelValues(profile.Name, strategy.Name, "empty").Inc()
			c.logger.Debug("strategy yielded no usable data",
				"site", profile.Name, "strategy", strategy.Name)
		default:
			observability.StrategyAttempts.WithLabelValues(profile.Name, strategy.Name, "hit").Inc()
			c.logger.Info("strategy produced product data",
				"site", profile.Name, "strategy", strategy.Name)
			return raw, strategy.Name
		}
	}
	return nil, ""
}

func (c *Cascade) attempt(ctx context.Context, page Page, profile *sites.Profile, strategy Strategy) (raw RawProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("strategy %s panicked: %v", strategy.Name, r)
		}
	}()
	return strategy.Run(ctx, page, profile)
}

// Usable is the predicate deciding whether a strategy's output is accepted:
// a sufficiently long title under any of the site's recognized key names.
func Usable(raw RawProduct, profile *sites.Profile) bool {
	if raw == nil {
		return false
	}
	title := strings.TrimSpace(raw.String(profile.TitleKeys...))
	return utf8.RuneCountInString(title) >= models.MinTitleLen
}
