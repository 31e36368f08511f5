package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ident(id, name string, offset time.Duration) model.PatientIdentity {
	return model.PatientIdentity{ID: id, CanonicalName: name, NameVariations: []string{name}, CreatedAt: t0.Add(offset)}
}

func TestResolve_EmptyRegistry(t *testing.T) {
	r := NewResolver(nil, 0)
	assert.Nil(t, r.Resolve(context.Background(), "John Smith", nil))
	assert.Equal(t, Threshold, r.Threshold())
}

func TestResolve_RuleBased(t *testing.T) {
	registry := []model.PatientIdentity{
		ident("mary_jones", "Mary Jones", 0),
		ident("john_smith", "John Smith", time.Minute),
	}
	r := NewResolver(RuleBasedMatcher{}, Threshold)

	got := r.Resolve(context.Background(), "Smith, John", registry)
	require.NotNil(t, got)
	assert.Equal(t, "john_smith", got.ID)

	assert.Nil(t, r.Resolve(context.Background(), "Priya Sharma", registry))
}

func TestResolve_HighestScoreWins(t *testing.T) {
	registry := []model.PatientIdentity{
		ident("a", "A", 0),
		ident("b", "B", time.Minute),
	}
	r := NewResolver(fixedMatcher{"A": 0.86, "B": 0.97}, 0.85)

	got := r.Resolve(context.Background(), "x", registry)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)
}

func TestResolve_TieGoesToEarliestCreated(t *testing.T) {
	registry := []model.PatientIdentity{
		ident("later", "L", time.Hour),
		ident("earlier", "E", 0),
	}
	r := NewResolver(fixedMatcher{"L": 0.9, "E": 0.9}, 0.85)

	got := r.Resolve(context.Background(), "x", registry)
	require.NotNil(t, got)
	assert.Equal(t, "earlier", got.ID)
}

func TestResolve_ThresholdIsInclusive(t *testing.T) {
	registry := []model.PatientIdentity{ident("a", "A", 0)}

	assert.NotNil(t, NewResolver(fixedMatcher{"A": 0.85}, 0.85).Resolve(context.Background(), "x", registry))
	assert.Nil(t, NewResolver(fixedMatcher{"A": 0.8499}, 0.85).Resolve(context.Background(), "x", registry))
}

func TestNewResolver_InvalidThreshold(t *testing.T) {
	assert.Equal(t, Threshold, NewResolver(nil, 1.5).Threshold())
	assert.Equal(t, 0.9, NewResolver(nil, 0.9).Threshold())
}
