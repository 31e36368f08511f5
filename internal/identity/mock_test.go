package identity

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/labvault/internal/disambig"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Match(ctx context.Context, a, b string) (*disambig.Verdict, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*disambig.Verdict), args.Error(1)
}

// fixedMatcher scores by canonical name, ignoring the new name.
type fixedMatcher map[string]float64

func (f fixedMatcher) Confidence(_ context.Context, _, b string) float64 { return f[b] }
