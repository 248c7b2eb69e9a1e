package federation

import (
	"context"

	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/engine"
)

// Row is one federation with its balance. Known is false when the snapshot
// has no entry for the federation; Balance is then meaningless.
type Row struct {
	Federation engine.FederationIdentity `json:"federation"`
	Balance    uint64                    `json:"balance"`
	Known      bool                      `json:"known"`
}

// FetchSnapshot returns the engine's per-federation balances. Any failure,
// including a missing engine, yields an empty snapshot.
func FetchSnapshot(ctx context.Context, c Container, log config.LogWriter) []engine.FederationBalance {
	eng, err := c.Engine()
	if err != nil {
		log.Debug("balance snapshot skipped: %v", err)
		return nil
	}
	snap, err := eng.GetFederationBalances(ctx)
	if err != nil {
		log.Error("fetching federation balances: %v", err)
		return nil
	}
	return snap
}

// Join pairs each federation with its snapshot entry by id, keeping the
// order of federations.
func Join(federations []engine.FederationIdentity, snapshot []engine.FederationBalance) []Row {
	balances := make(map[string]uint64, len(snapshot))
	for _, b := range snapshot {
		balances[b.IdentityFederationID] = b.Balance
	}

	rows := make([]Row, 0, len(federations))
	for _, f := range federations {
		bal, ok := balances[f.ID]
		rows = append(rows, Row{Federation: f, Balance: bal, Known: ok})
	}
	return rows
}
