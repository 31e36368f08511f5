package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/source"
	"github.com/sells-group/labvault/internal/vault"
)

type mockVault struct{ mock.Mock }

func (m *mockVault) Admit(ctx context.Context, report *model.LabReport, doc vault.Document, resolve vault.ResolveFunc) (*vault.Admission, error) {
	args := m.Called(ctx, report, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vault.Admission), args.Error(1)
}

// mapLoader serves documents from memory; paths missing from the map fail.
type mapLoader map[string]*source.Document

func (l mapLoader) Load(_ context.Context, path string) (*source.Document, error) {
	doc, ok := l[path]
	if !ok {
		return nil, source.ErrUnsupportedFormat
	}
	return doc, nil
}
