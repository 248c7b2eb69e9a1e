package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

func TestMetrics_RecordSync(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordSync(100*time.Millisecond, nil)
	m.RecordSync(300*time.Millisecond, fwerr.ErrEngine)
	m.RecordSyncSkipped()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SyncsTotal)
	assert.Equal(t, int64(1), snap.SyncErrors)
	assert.Equal(t, int64(1), snap.SyncsSkipped)
	assert.InDelta(t, 200.0, m.SyncLatencyAvgMs(), 0.001)
}

func TestMetrics_SyncLatencyAvgNoCalls(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	assert.InDelta(t, 0.0, m.SyncLatencyAvgMs(), 0.001)
}

func TestMetrics_AuthAndEngine(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordAuthLookup(nil)
	m.RecordAuthLookup(fwerr.ErrAuthLookup)
	m.RecordEngineInit(nil)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.AuthLookups)
	assert.Equal(t, int64(1), snap.AuthLookupErrors)
	assert.Equal(t, int64(1), snap.EngineInits)
	assert.Equal(t, int64(0), snap.EngineInitErrors)
}

func TestMetrics_Federations(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordFederationJoin(nil)
	m.RecordFederationJoin(fwerr.ErrEngine)
	m.RecordFederationRemove(nil)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.FederationsJoined)
	assert.Equal(t, int64(1), snap.FederationsRemoved)
	assert.Equal(t, int64(1), snap.FederationErrors)
}

func TestMetrics_CacheHitRate(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	assert.InDelta(t, 0.0, m.CacheHitRate(), 0.001)

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	assert.InDelta(t, 75.0, m.CacheHitRate(), 0.001)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordSync(time.Second, nil)
	m.RecordCacheMiss()
	m.RecordFederationJoin(nil)

	m.Reset()

	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSync(time.Millisecond, nil)
			m.RecordCacheHit()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().SyncsTotal)
	assert.Equal(t, int64(50), m.Snapshot().CacheHits)
}

func TestCollector_Gather(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordSync(2*time.Second, nil)
	m.RecordFederationJoin(nil)

	reg := NewRegistry(m)
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] = c.GetValue()
			}
		}
	}

	assert.InDelta(t, 1.0, values["fedwallet_syncs_total"], 0)
	assert.InDelta(t, 2.0, values["fedwallet_sync_duration_seconds_total"], 0.0001)
	assert.InDelta(t, 1.0, values["fedwallet_federations_joined_total"], 0)
	assert.InDelta(t, 0.0, values["fedwallet_federations_removed_total"], 0)
}

func TestHandler_ServesExposition(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordAuthLookup(nil)

	srv := httptest.NewServer(Handler(NewRegistry(m)))
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fedwallet_auth_lookups_total 1")
}
