package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/gyre/internal/domain"
	"github.com/notifyhub/gyre/internal/registry"
)

func noop(any, string) (domain.Resumable, error) { return nil, nil }

func handles(ls []*registry.Listener) []domain.Handle {
	out := make([]domain.Handle, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Handle)
	}
	return out
}

func TestRegistry_HandlesAreMonotonicAndNeverReused(t *testing.T) {
	r := registry.New()

	a := r.Add("a", []string{"p"}, 0, noop)
	b := r.Add("b", []string{"p"}, 0, noop)
	assert.Equal(t, domain.Handle(1), a.Handle)
	assert.Equal(t, domain.Handle(2), b.Handle)

	deleted, ok := r.Unsubscribe(b.Handle, []string{"p"})
	require.True(t, ok)
	require.True(t, deleted)

	c := r.Add("c", []string{"p"}, 0, noop)
	assert.Equal(t, domain.Handle(3), c.Handle)
}

func TestRegistry_SubscribersInRegistrationOrder(t *testing.T) {
	r := registry.New()
	a := r.Add("a", []string{"x", "y"}, 0, noop)
	b := r.Add("b", []string{"y"}, 0, noop)
	c := r.Add("c", []string{"x"}, 0, noop)

	assert.Equal(t, []domain.Handle{a.Handle, c.Handle}, handles(r.Subscribers("x")))
	assert.Equal(t, []domain.Handle{a.Handle, b.Handle}, handles(r.Subscribers("y")))
	assert.Empty(t, r.Subscribers("z"))
}

// TestRegistry_PartialUnsubscribeShrinksSubscriptions verifies that a
// partially unsubscribed listener no longer appears for the removed id.
func TestRegistry_PartialUnsubscribeShrinksSubscriptions(t *testing.T) {
	r := registry.New()
	l := r.Add("a", []string{"x", "y"}, 0, noop)

	deleted, ok := r.Unsubscribe(l.Handle, []string{"x"})
	require.True(t, ok)
	assert.False(t, deleted)

	got, ok := r.Get(l.Handle)
	require.True(t, ok)
	assert.Equal(t, []string{"y"}, got.ProjectionIDs)
	assert.Empty(t, r.Subscribers("x"))
	assert.Len(t, r.Subscribers("y"), 1)
}

func TestRegistry_UnsubscribeAllDeletes(t *testing.T) {
	r := registry.New()
	l := r.Add("a", []string{"x", "y"}, 0, noop)

	deleted, ok := r.Unsubscribe(l.Handle, []string{"y", "x"})
	require.True(t, ok)
	assert.True(t, deleted)

	_, ok = r.Get(l.Handle)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Subscribers("x"))
}

func TestRegistry_UnsubscribeUnknownHandle(t *testing.T) {
	r := registry.New()
	deleted, ok := r.Unsubscribe(42, []string{"x"})
	assert.False(t, ok)
	assert.False(t, deleted)
}

func TestRegistry_UnsubscribeUnrelatedIDKeepsListener(t *testing.T) {
	r := registry.New()
	l := r.Add("a", []string{"x"}, 0, noop)

	deleted, ok := r.Unsubscribe(l.Handle, []string{"other"})
	require.True(t, ok)
	assert.False(t, deleted)
	assert.Len(t, r.Subscribers("x"), 1)
}

func TestRegistry_ListReturnsCopies(t *testing.T) {
	r := registry.New()
	r.Add("b", []string{"y"}, 2, noop)
	r.Add("a", []string{"x"}, 1, noop)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)
	assert.Equal(t, "a", list[1].Name)

	list[0].ProjectionIDs[0] = "mutated"
	got, _ := r.Get(list[0].Handle)
	assert.Equal(t, []string{"y"}, got.ProjectionIDs)
}
