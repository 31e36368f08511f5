package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/archive"
	"github.com/sells-group/labvault/internal/config"
	"github.com/sells-group/labvault/internal/disambig"
	"github.com/sells-group/labvault/internal/identity"
	"github.com/sells-group/labvault/internal/monitoring"
	"github.com/sells-group/labvault/internal/ocr"
	"github.com/sells-group/labvault/internal/pipeline"
	"github.com/sells-group/labvault/internal/resilience"
	"github.com/sells-group/labvault/internal/source"
	"github.com/sells-group/labvault/internal/store"
	"github.com/sells-group/labvault/internal/vault"
)

// appEnv holds everything the extract/process/batch/serve commands share.
type appEnv struct {
	Vault    *vault.Store
	Ledger   store.Store // nil when store.driver is "none"
	Loader   *source.Loader
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Metrics
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Ledger != nil {
		_ = e.Ledger.Close()
	}
}

// initEnv validates cfg for mode and wires the vault, ledger, matcher and
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{Metrics: monitoring.NewMetrics()}

	var vaultOpts []vault.Option
	mirror, err := archive.New(ctx, c.Archive)
	if err != nil {
		return nil, eris.Wrap(err, "init archive")
	}
	if mirror != nil {
		vaultOpts = append(vaultOpts, vault.WithMirror(mirror))
		zap.L().Info("vault mirror enabled", zap.String("bucket", c.Archive.S3Bucket))
	}

	env.Vault, err = vault.Open(c.Vault.BaseDir, vaultOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "open vault")
	}

	env.Ledger, err = store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open run ledger")
	}

	pdf, err := ocr.NewExtractor(c.OCR, c.Mistral.Key)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init ocr")
	}
	env.Loader = source.NewLoader(pdf)

	matcher, err := initMatcher(c, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(env.Metrics)}
	if env.Ledger != nil {
		opts = append(opts, pipeline.WithLedger(env.Ledger))
	}
	env.Pipeline = pipeline.New(identity.NewResolver(matcher, c.Identity.Threshold), env.Vault, opts...)

	zap.L().Debug("environment ready",
		zap.String("vault", c.Vault.BaseDir),
		zap.String("store", c.Store.Driver),
		zap.String("disambig", c.Disambig.Provider),
	)
	return env, nil
}

// initMatcher returns the assisted matcher when a disambiguation provider is
// configured, otherwise the rule-based one.
func initMatcher(c *config.Config, m *monitoring.Metrics) (identity.NameMatcher, error) {
	key, baseURL := c.Anthropic.Key, ""
	if c.Disambig.Provider == "openai" {
		key, baseURL = c.OpenAI.Key, c.OpenAI.BaseURL
	}

	provider, err := disambig.NewProvider(disambig.Config{
		Provider: c.Disambig.Provider,
		Model:    c.Disambig.Model,
		APIKey:   key,
		BaseURL:  baseURL,
		Timeout:  time.Duration(c.Disambig.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init disambiguation provider")
	}
	if provider == nil {
		return identity.RuleBasedMatcher{}, nil
	}

	zap.L().Info("assisted name matching enabled", zap.String("provider", provider.Name()))
	return identity.NewAssistedMatcher(provider, identity.AssistedOptions{
		Timeout:    time.Duration(c.Disambig.TimeoutMs) * time.Millisecond,
		RatePerSec: c.Disambig.RatePerSec,
		CacheTTL:   time.Duration(c.Disambig.CacheTTLMins) * time.Minute,
		Breaker:    resilience.NewBreaker(resilience.NewBreakerConfig(c.Disambig.FailureThreshold, c.Disambig.ResetTimeoutSecs)),
		OnFallback: m.MatcherFallback,
	}), nil
}
