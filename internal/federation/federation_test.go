package federation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/engine/enginetest"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/prefs"
	"github.com/mrz1836/fedwallet/internal/session"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

type approvedLookup struct{}

func (approvedLookup) Lookup(_ context.Context, id string) (*authz.Record, error) {
	return &authz.Record{ID: id, ApprovalDate: "2023-01-01"}, nil
}

type harness struct {
	container *session.Container
	engine    *enginetest.Engine
	metrics   *metrics.Metrics
	manager   *Manager
}

// newHarness returns a session with a ready engine unless withoutEngine.
func newHarness(t *testing.T, withoutEngine bool) *harness {
	t.Helper()

	h := &harness{engine: enginetest.New(), metrics: &metrics.Metrics{}}
	c, err := session.New(context.Background(), session.Options{
		Factory: enginetest.NewFactory(h.engine),
		Lookup:  approvedLookup{},
		Prefs:   prefs.New(prefs.NewMemoryStore(nil)),
		Metrics: h.metrics,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	if !withoutEngine {
		require.NoError(t, c.InitializeEngine(context.Background(), nil))
	}
	h.container = c
	h.manager = NewManager(c, Options{Metrics: h.metrics})
	return h
}

// nilJoinEngine reports success from NewFederation without a federation.
type nilJoinEngine struct{ *enginetest.Engine }

func (nilJoinEngine) NewFederation(context.Context, string) (*engine.FederationIdentity, error) {
	return nil, nil
}

type engineOverride struct {
	*session.Container
	eng engine.Engine
}

func (c engineOverride) Engine() (engine.Engine, error) { return c.eng, nil }

func fed(id string) engine.FederationIdentity {
	return engine.FederationIdentity{ID: id, Name: "Fed " + id}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	t.Run("known and unknown balances", func(t *testing.T) {
		t.Parallel()
		rows := Join(
			[]engine.FederationIdentity{fed("a"), fed("b")},
			[]engine.FederationBalance{{IdentityFederationID: "a", Balance: 500}, {IdentityFederationID: "z", Balance: 9}},
		)
		require.Len(t, rows, 2)
		assert.Equal(t, Row{Federation: fed("a"), Balance: 500, Known: true}, rows[0])
		assert.Equal(t, Row{Federation: fed("b")}, rows[1])
	})

	t.Run("zero balance is known", func(t *testing.T) {
		t.Parallel()
		rows := Join([]engine.FederationIdentity{fed("a")}, []engine.FederationBalance{{IdentityFederationID: "a"}})
		assert.True(t, rows[0].Known)
	})

	t.Run("empty inputs", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, Join(nil, nil))
		rows := Join([]engine.FederationIdentity{fed("a")}, nil)
		assert.False(t, rows[0].Known)
	})
}

func TestFetchSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := Options{}.withDefaults().Logger

	t.Run("no engine", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)
		assert.Empty(t, FetchSnapshot(ctx, h.container, log))
	})

	t.Run("engine error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.AddFederation(fed("a"), 5)
		h.engine.SetError(enginetest.OpGetFederationBalances, errors.New("timeout"))
		assert.Empty(t, FetchSnapshot(ctx, h.container, log))
	})

	t.Run("balances", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.AddFederation(fed("a"), 5)
		assert.Equal(t, []engine.FederationBalance{{IdentityFederationID: "a", Balance: 5}}, FetchSnapshot(ctx, h.container, log))
	})
}

func TestAddForm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty or whitespace code is rejected before the engine", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		form := h.manager.AddForm()

		for _, code := range []string{"", "   ", "\t\n"} {
			form.SetCode(code)
			require.ErrorIs(t, form.Validate(), fwerr.ErrValidation)
			_, err := form.Submit(ctx)
			require.ErrorIs(t, err, fwerr.ErrValidation)
			assert.EqualError(t, err, "federation code is required")
		}
		assert.Equal(t, 0, h.engine.Calls(enginetest.OpNewFederation))
		assert.Equal(t, fwerr.ExitInput, fwerr.ExitCode(form.Err()))
	})

	t.Run("join refreshes the list and refetches balances", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		form := h.manager.AddForm()
		form.SetCode("  fed1abc ")

		joined, err := form.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, enginetest.FederationID("fed1abc"), joined.ID)
		assert.Empty(t, form.Code())
		require.NoError(t, form.Err())
		assert.Contains(t, form.Success(), "Joined")
		assert.False(t, form.Busy())

		feds := h.container.State().Federations
		require.Len(t, feds, 1)
		assert.Equal(t, joined.ID, feds[0].ID)

		rows := h.manager.CachedRows()
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Known)
		assert.Equal(t, int64(1), h.metrics.Snapshot().FederationsJoined)
		assert.Equal(t, 1, h.engine.Calls(enginetest.OpGetFederationBalances))
	})

	t.Run("engine failure keeps the input", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.SetError(enginetest.OpNewFederation, errors.New("invalid invite code"))
		form := h.manager.AddForm()
		form.SetCode("fed1bad")

		_, err := form.Submit(ctx)
		require.ErrorIs(t, err, fwerr.ErrEngine)
		assert.Contains(t, err.Error(), "invalid invite code")
		assert.True(t, strings.HasPrefix(err.Error(), "joining federation: "))
		assert.Equal(t, "fed1bad", form.Code())
		assert.Equal(t, err, form.Err())
		assert.Empty(t, form.Success())
		assert.Empty(t, h.container.State().Federations)
		assert.Equal(t, int64(1), h.metrics.Snapshot().FederationErrors)
	})

	t.Run("engine returning no federation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		c := engineOverride{Container: h.container, eng: nilJoinEngine{h.engine}}
		form := NewAddForm(c, Options{Metrics: h.metrics}, nil)
		form.SetCode("fed1abc")

		_, err := form.Submit(ctx)
		require.ErrorIs(t, err, fwerr.ErrEngine)
		require.ErrorIs(t, err, errNoFederation)
		assert.False(t, form.Busy())
		assert.Equal(t, "fed1abc", form.Code())

		_, err = form.Submit(ctx)
		require.ErrorIs(t, err, errNoFederation)
	})

	t.Run("no engine", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)
		form := h.manager.AddForm()
		form.SetCode("fed1abc")
		_, err := form.Submit(ctx)
		require.ErrorIs(t, err, fwerr.ErrEngineNotReady)
	})

	t.Run("second submit while outstanding is busy", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		release := make(chan struct{})
		h.engine.SetHook(enginetest.OpNewFederation, func(context.Context) error {
			<-release
			return nil
		})
		form := h.manager.AddForm()
		form.SetCode("fed1abc")

		done := make(chan error, 1)
		go func() {
			_, err := form.Submit(ctx)
			done <- err
		}()
		require.Eventually(t, form.Busy, time.Second, time.Millisecond)

		_, err := form.Submit(ctx)
		require.ErrorIs(t, err, fwerr.ErrBusy)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, 1, h.engine.Calls(enginetest.OpNewFederation))
	})

	t.Run("deep link prefill is applied once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		link, err := ParseLink("fedwallet://settings/federations?fedimint_invite=fed1xyz&tab=2")
		require.NoError(t, err)

		form := h.manager.AddForm()
		form.ApplyDeepLink(link)
		assert.Equal(t, "fed1xyz", form.Code())
		assert.Empty(t, link.Get(InviteParam))
		assert.Equal(t, "fedwallet://settings/federations?tab=2", link.String())

		form.SetCode("")
		form.ApplyDeepLink(link)
		assert.Empty(t, form.Code())
		form.ApplyDeepLink(nil)
	})
}

func TestRemoveGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("arm cancel confirm", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.AddFederation(fed("a"), 1)
		h.engine.AddFederation(fed("b"), 2)
		require.NoError(t, h.container.RefreshFederations(ctx))

		gate := h.manager.RemoveGate("a")
		assert.Equal(t, GateIdle, gate.State())
		require.ErrorIs(t, gate.Confirm(ctx), fwerr.ErrNotArmed)

		require.NoError(t, gate.Arm())
		assert.Equal(t, GateArmed, gate.State())
		gate.Cancel()
		assert.Equal(t, GateIdle, gate.State())
		require.ErrorIs(t, gate.Confirm(ctx), fwerr.ErrNotArmed)
		assert.Equal(t, 0, h.engine.Calls(enginetest.OpRemoveFederation))

		require.NoError(t, gate.Arm())
		require.NoError(t, gate.Confirm(ctx))
		assert.Equal(t, GateIdle, gate.State())
		assert.Equal(t, []engine.FederationIdentity{fed("b")}, h.container.State().Federations)
		assert.Equal(t, int64(1), h.metrics.Snapshot().FederationsRemoved)
	})

	t.Run("failure returns to idle", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.AddFederation(fed("a"), 1)
		require.NoError(t, h.container.RefreshFederations(ctx))
		h.engine.SetError(enginetest.OpRemoveFederation, errors.New("funds remaining"))

		gate := h.manager.RemoveGate("a")
		require.NoError(t, gate.Arm())
		err := gate.Confirm(ctx)
		require.ErrorIs(t, err, fwerr.ErrEngine)
		assert.Contains(t, err.Error(), "funds remaining")
		assert.True(t, strings.HasPrefix(err.Error(), "leaving federation a: "))
		assert.Equal(t, GateIdle, gate.State())
		assert.Len(t, h.container.State().Federations, 1)
	})

	t.Run("confirm while busy", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.engine.AddFederation(fed("a"), 1)
		release := make(chan struct{})
		h.engine.SetHook(enginetest.OpRemoveFederation, func(context.Context) error {
			<-release
			return nil
		})

		gate := h.manager.RemoveGate("a")
		require.NoError(t, gate.Arm())
		done := make(chan error, 1)
		go func() { done <- gate.Confirm(ctx) }()
		require.Eventually(t, func() bool { return gate.State() == GateBusy }, time.Second, time.Millisecond)

		require.ErrorIs(t, gate.Confirm(ctx), fwerr.ErrBusy)
		require.ErrorIs(t, gate.Arm(), fwerr.ErrBusy)
		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, 1, h.engine.Calls(enginetest.OpRemoveFederation))
	})

	t.Run("gate state names", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "idle", GateIdle.String())
		assert.Equal(t, "armed", GateArmed.String())
		assert.Equal(t, "busy", GateBusy.String())
		assert.Equal(t, "unknown", GateState(7).String())
	})
}

func TestManagerRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, false)
	h.engine.AddFederation(fed("a"), 500)
	h.engine.AddFederation(fed("b"), 0)
	h.engine.DropBalance("b")

	before := h.manager.CachedRows()
	assert.Empty(t, before)

	rows := h.manager.Rows(ctx)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Federation: fed("a"), Balance: 500, Known: true}, rows[0])
	assert.Equal(t, Row{Federation: fed("b")}, rows[1])

	snap := h.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.Equal(t, int64(1), snap.CacheHits)
}

func TestManagerRowsConcurrentWithMutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newHarness(t, false)
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			form := h.manager.AddForm()
			form.SetCode("fed1" + string(rune('a'+i)))
			_, _ = form.Submit(ctx)
		}()
		go func() {
			defer wg.Done()
			_ = h.manager.Rows(ctx)
		}()
	}
	wg.Wait()

	rows := h.manager.Rows(ctx)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.True(t, r.Known)
	}
}

func TestFindFederation(t *testing.T) {
	t.Parallel()

	list := []engine.FederationIdentity{
		{ID: "a1b2c3d4", Name: "Signet Fed"},
		{ID: "a1ffee00", Name: "Coffee"},
		{ID: "77aa0011", Name: "Coffee"},
	}

	t.Run("exact id", func(t *testing.T) {
		t.Parallel()
		got, err := FindFederation(list, "a1ffee00")
		require.NoError(t, err)
		assert.Equal(t, "a1ffee00", got.ID)
	})

	t.Run("unique prefix", func(t *testing.T) {
		t.Parallel()
		got, err := FindFederation(list, " a1b ")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4", got.ID)
	})

	t.Run("unique name", func(t *testing.T) {
		t.Parallel()
		got, err := FindFederation(list, "signet fed")
		require.NoError(t, err)
		assert.Equal(t, "a1b2c3d4", got.ID)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		t.Parallel()
		_, err := FindFederation(list, "a1")
		require.ErrorIs(t, err, fwerr.ErrInvalidInput)
		assert.Contains(t, err.Error(), "a1b2c3d4, a1ffee00")
	})

	t.Run("ambiguous name", func(t *testing.T) {
		t.Parallel()
		_, err := FindFederation(list, "coffee")
		require.ErrorIs(t, err, fwerr.ErrInvalidInput)
	})

	t.Run("miss with suggestion", func(t *testing.T) {
		t.Parallel()
		_, err := FindFederation(list, "a1b2x3")
		require.ErrorIs(t, err, fwerr.ErrFederationNotFound)
		var we *fwerr.WalletError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "Did you mean a1b2c3d4?", we.Suggestion)
	})

	t.Run("miss without suggestion", func(t *testing.T) {
		t.Parallel()
		_, err := FindFederation(list, "zzzzzzzzzzzz")
		var we *fwerr.WalletError
		require.ErrorAs(t, err, &we)
		assert.Empty(t, we.Suggestion)
	})

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		_, err := FindFederation(list, "  ")
		require.ErrorIs(t, err, fwerr.ErrInvalidInput)
	})
}

func TestParseLink(t *testing.T) {
	t.Parallel()

	p, err := ParseLink("fedimint_invite=fed1qq")
	require.NoError(t, err)
	assert.Equal(t, "fed1qq", p.Get(InviteParam))

	p, err = ParseLink("fedwallet://federations")
	require.NoError(t, err)
	assert.Empty(t, p.Get(InviteParam))

	_, err = ParseLink("http://[::1")
	require.Error(t, err)
}
