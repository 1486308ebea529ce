package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/domain"
	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Board holds one View per configured market, in configuration order.
type Board struct {
	views []*View
	byAMM map[common.Address]*View
}

// NewBoard builds a view for every descriptor.
func NewBoard(ledger ports.Ledger, descriptors []domain.MarketDescriptor, oracle common.Address) *Board {
	b := &Board{byAMM: make(map[common.Address]*View, len(descriptors))}
	for _, d := range descriptors {
		v := NewView(ledger, d, oracle)
		b.views = append(b.views, v)
		b.byAMM[d.AMM] = v
	}
	return b
}

func (b *Board) Views() []*View { return b.views }

// Lookup finds a view by AMM address or by case-insensitive title prefix.
func (b *Board) Lookup(key string) (*View, error) {
	if common.IsHexAddress(key) {
		if v, ok := b.byAMM[common.HexToAddress(key)]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("market.Lookup: no market with AMM %s", key)
	}

	var found *View
	needle := strings.ToLower(key)
	for _, v := range b.views {
		if strings.HasPrefix(strings.ToLower(v.desc.Title), needle) {
			if found != nil {
				return nil, fmt.Errorf("market.Lookup: %q matches more than one market", key)
			}
			found = v
		}
	}
	if found == nil {
		return nil, fmt.Errorf("market.Lookup: no market matches %q", key)
	}
	return found, nil
}

// RefreshAll refreshes every view and returns the failures. One market
// failing does not stop the others.
func (b *Board) RefreshAll(ctx context.Context) []error {
	var errs []error
	for _, v := range b.views {
		if ctx.Err() != nil {
			return append(errs, ctx.Err())
		}
		if _, err := v.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Snapshots returns the published markets and which of them are stale,
// keyed by AMM hex address. Markets never refreshed successfully are left
// out.
func (b *Board) Snapshots() ([]domain.Market, map[string]bool) {
	markets := make([]domain.Market, 0, len(b.views))
	stale := make(map[string]bool)
	for _, v := range b.views {
		m, isStale, ok := v.Snapshot()
		if !ok {
			continue
		}
		markets = append(markets, m)
		if isStale {
			stale[m.AMM.Hex()] = true
		}
	}
	return markets, stale
}
