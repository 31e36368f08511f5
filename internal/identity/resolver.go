package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/model"
)

// Resolver picks the known identity a new name belongs to, if any.
type Resolver struct {
	matcher   NameMatcher
	threshold float64
}

// NewResolver returns a Resolver. A nil matcher selects RuleBasedMatcher and
// a threshold outside (0, 1] selects Threshold.
func NewResolver(matcher NameMatcher, threshold float64) *Resolver {
	if matcher == nil {
		matcher = RuleBasedMatcher{}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = Threshold
	}
	return &Resolver{matcher: matcher, threshold: threshold}
}

// Resolve returns the best-scoring identity whose confidence reaches the
// threshold, or nil when the name belongs to a new patient. The earliest
// created identity wins a tie; equal timestamps fall back to registry order.
func (r *Resolver) Resolve(ctx context.Context, name string, registry []model.PatientIdentity) *model.PatientIdentity {
	best, bestScore := -1, 0.0
	for i := range registry {
		s := r.matcher.Confidence(ctx, name, registry[i].CanonicalName)
		switch {
		case s > bestScore:
			best, bestScore = i, s
		case s == bestScore && best >= 0 && registry[i].CreatedAt.Before(registry[best].CreatedAt):
			best = i
		}
	}

	if best < 0 || bestScore < r.threshold {
		zap.L().Debug("identity: no match",
			zap.String("name", name),
			zap.Float64("best_score", bestScore),
			zap.Int("candidates", len(registry)),
		)
		return nil
	}

	match := registry[best]
	zap.L().Debug("identity: matched",
		zap.String("name", name),
		zap.String("patient_id", match.ID),
		zap.Float64("score", bestScore),
	)
	return &match
}

// Threshold returns the confidence cutoff in use.
func (r *Resolver) Threshold() float64 { return r.threshold }
