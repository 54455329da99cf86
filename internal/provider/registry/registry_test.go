package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/provider/registry"
)

// mockAdapter is a mock implementation of domain.Adapter for testing.
type mockAdapter struct {
	name string
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) ResolveModel(model string) string { return model }

func (m *mockAdapter) Stream(_ context.Context, _ *domain.ChatRequest) (<-chan domain.DeltaEvent, error) {
	ch := make(chan domain.DeltaEvent)
	close(ch)
	return ch, nil
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register adapter successfully", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register(&mockAdapter{name: "gateway"})

		require.NoError(t, err)
		require.Equal(t, []string{"gateway"}, reg.List())
	})

	t.Run("should reject a nil adapter", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register(nil)

		require.Error(t, err)
	})

	t.Run("should reject an empty name", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.Register(&mockAdapter{})

		require.Error(t, err)
	})

	t.Run("should reject a duplicate name", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(&mockAdapter{name: "gateway"}))

		err := reg.Register(&mockAdapter{name: "gateway"})

		require.Error(t, err)
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should return a registered adapter", func(t *testing.T) {
		reg := registry.NewRegistry()
		adapter := &mockAdapter{name: "groq"}
		require.NoError(t, reg.Register(adapter))

		got, ok := reg.Get("groq")

		require.True(t, ok)
		require.Same(t, domain.Adapter(adapter), got)
	})

	t.Run("should miss on unknown names", func(t *testing.T) {
		reg := registry.NewRegistry()

		_, ok := reg.Get("ghost")

		require.False(t, ok)
	})
}
