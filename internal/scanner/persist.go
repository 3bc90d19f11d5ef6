package scanner

import (
	"github.com/pierrenik/signalauto/internal/portfolio"
	"github.com/pierrenik/signalauto/internal/store"
)

// opsFor converts transition effects into ordered store writes. Closed
// records are archived before their open row is deleted so a crash between
// the two leaves a duplicate that Restore cleans up, never a lost trade.
func opsFor(fx portfolio.Effects) []store.Op {
	ops := make([]store.Op, 0, len(fx.Upsert)+len(fx.Archive)+len(fx.Delete)+len(fx.Cooldowns))
	for _, s := range fx.Upsert {
		ops = append(ops, store.Op{Kind: store.OpSaveOpen, Signal: s})
	}
	for _, s := range fx.Archive {
		ops = append(ops, store.Op{Kind: store.OpAppendHistory, Signal: s})
	}
	for _, id := range fx.Delete {
		ops = append(ops, store.Op{Kind: store.OpDeleteOpen, ID: id})
	}
	for sym, until := range fx.Cooldowns {
		ops = append(ops, store.Op{Kind: store.OpSaveCooldown, Symbol: sym, Until: until})
	}
	return ops
}
