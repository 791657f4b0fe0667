package api

import (
	"time"

	"github.com/pointercrate/demonlist/internal/config"
	"github.com/pointercrate/demonlist/pkg/logger"
)

const defaultMaxRankingLimit = 100

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimits replaces the default rate limits.
func WithRateLimits(limits RateLimits) Option {
	return func(s *Server) {
		s.limits = limits
	}
}

// WithMaxRankingLimit caps the limit query parameter of the ranking.
func WithMaxRankingLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRank = n
		}
	}
}

// WithConfig applies the rate limits and ranking cap of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg == nil {
			return
		}
		s.limits = RateLimitsFromConfig(cfg)
		if cfg.MaxRankingLimit > 0 {
			s.maxRank = cfg.MaxRankingLimit
		}
	}
}

// WithClock overrides time.Now for the rate limiters.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}
