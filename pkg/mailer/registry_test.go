package mailer_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	x := mailer.HTMLTemplate("x", "x")
	y := mailer.HTMLTemplate("y", "y")

	require.NoError(t, reg.Register("p", "t", x))
	require.NoError(t, reg.Register("p", "t", y))

	got, err := reg.Get("p", "t")
	require.NoError(t, err)
	require.Same(t, y, got, "last write wins")
	require.Equal(t, 1, reg.Len())
}

func TestRegistry_TenantIsolation(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	x := mailer.HTMLTemplate("x", "x")
	y := mailer.HTMLTemplate("y", "y")
	require.NoError(t, reg.Register("A", "W", x))
	require.NoError(t, reg.Register("B", "W", y))

	a, err := reg.Get("A", "W")
	require.NoError(t, err)
	b, err := reg.Get("B", "W")
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.Same(t, x, a)
	require.Same(t, y, b)
}

func TestRegistry_InvalidArguments(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	tpl := mailer.HTMLTemplate("s", "b")

	require.ErrorIs(t, reg.Register("", "t", tpl), mailer.ErrInvalidArgument)
	require.ErrorIs(t, reg.Register("  ", "t", tpl), mailer.ErrInvalidArgument)
	require.ErrorIs(t, reg.Register("p", "\t", tpl), mailer.ErrInvalidArgument)
	require.ErrorIs(t, reg.Register("p", "t", nil), mailer.ErrInvalidArgument)
	require.Zero(t, reg.Len())
}

func TestRegistry_Lookups(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	require.NoError(t, reg.Register("acme", "Welcome", mailer.HTMLTemplate("s", "b")))
	require.NoError(t, reg.Register("acme", "Reset", mailer.HTMLTemplate("s", "b")))
	require.NoError(t, reg.Register("beta", "Welcome", mailer.HTMLTemplate("s", "b")))

	_, err := reg.Get("acme", "Missing")
	require.ErrorIs(t, err, mailer.ErrTemplateNotFound)
	require.Equal(t, "Template 'Missing' not found for project 'acme'.", err.Error())

	tpl, ok := reg.TryGet("acme", "Missing")
	require.False(t, ok)
	require.Nil(t, tpl)

	require.True(t, reg.Has("acme", "Welcome"))
	require.False(t, reg.Has("acme", "welcome"), "keys are case sensitive")

	require.ElementsMatch(t, []string{"acme", "beta"}, reg.ListTenants())
	require.ElementsMatch(t, []string{"Welcome", "Reset"}, reg.ListTypes("acme"))
	require.Empty(t, reg.ListTypes("nobody"))

	require.True(t, reg.Remove("acme", "Reset"))
	require.False(t, reg.Remove("acme", "Reset"))
	require.ElementsMatch(t, []string{"Welcome"}, reg.ListTypes("acme"))
}

func TestRegistry_Replace(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	require.NoError(t, reg.Register("acme", "Old", mailer.HTMLTemplate("s", "b")))
	require.NoError(t, reg.Register("beta", "Keep", mailer.HTMLTemplate("s", "b")))

	require.NoError(t, reg.Replace("acme", map[string]*mailer.Template{"New": mailer.TextTemplate("s", "b")}))
	require.ElementsMatch(t, []string{"New"}, reg.ListTypes("acme"))
	require.True(t, reg.Has("beta", "Keep"))

	require.ErrorIs(t, reg.Replace("acme", map[string]*mailer.Template{"Bad": nil}), mailer.ErrInvalidArgument)
	require.True(t, reg.Has("acme", "New"), "failed replace leaves tenant untouched")

	require.NoError(t, reg.Replace("acme", nil))
	require.Empty(t, reg.ListTypes("acme"))
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	reg := mailer.NewRegistry()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tenant := fmt.Sprintf("tenant-%d", i%4)
			for j := range 100 {
				typ := fmt.Sprintf("type-%d", j%10)
				if err := reg.Register(tenant, typ, mailer.HTMLTemplate("s", "b")); err != nil {
					t.Error(err)
					return
				}
				reg.TryGet(tenant, typ)
				reg.ListTenants()
				reg.ListTypes(tenant)
				if j%7 == 0 {
					reg.Remove(tenant, typ)
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, reg.ListTenants(), 4)
}
