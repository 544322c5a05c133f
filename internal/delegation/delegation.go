// Package delegation resolves a wallet's effective delegation preference
// from the Ledger. The snapshot pipeline and the HTTP facade share it.
package delegation

import (
	"context"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/parse"
	"github.com/permaweb/atlas/internal/projects"
)

// Gateway is the slice of the gateway client the resolver consumes.
type Gateway interface {
	LatestSetDelegations(ctx context.Context, addr string) ([]string, error)
	DelegationPreferenceTx(ctx context.Context, batchID string) (string, error)
	Download(ctx context.Context, txID string) ([]byte, error)
}

// Resolve walks the two-hop lookup: the wallet's newest Set-Delegation
// messages, then the preference documents the delegation process pushed for
// them. The first fully allocated document wins; a partially allocated one
// is kept as a fallback. Any failure resolves to the 100% PI default.
func Resolve(ctx context.Context, gw Gateway, addr string) models.Preference {
	candidates, err := gw.LatestSetDelegations(ctx, addr)
	if err != nil {
		return Default(addr)
	}
	var fallback *models.Preference
	for _, batchID := range candidates {
		txID, err := gw.DelegationPreferenceTx(ctx, batchID)
		if err != nil {
			continue
		}
		data, err := gw.Download(ctx, txID)
		if err != nil {
			continue
		}
		pref, err := parse.Preference(data)
		if err != nil {
			continue
		}
		if pref.DelegationMsgID == "" {
			pref.DelegationMsgID = txID
		}
		if pref.TotalFactor >= projects.MaxFactor {
			return pref
		}
		fallback = &pref
	}
	if fallback != nil {
		return *fallback
	}
	return Default(addr)
}

// Default is the implicit 100% PI delegation a wallet holds until it
// publishes a preference of its own.
func Default(addr string) models.Preference {
	return models.Preference{
		Key:         "base_" + addr,
		TotalFactor: projects.MaxFactor,
		Wallet:      addr,
		DelegationPrefs: []models.PrefEntry{
			{WalletTo: projects.InternalPIPID, Factor: projects.MaxFactor},
		},
		DelegationMsgID: "not found",
	}
}
