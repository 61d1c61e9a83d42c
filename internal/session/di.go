package session

import (
	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/incident"
	"github.com/foxseedlab/modbot/internal/snapshot"
	"github.com/foxseedlab/modbot/internal/store"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		st := do.MustInvoke[*store.Store](i)
		dc := do.MustInvoke[discord.Client](i)
		reporter := do.MustInvoke[*incident.Reporter](i)
		persister := do.MustInvoke[*snapshot.Persister](i)
		gate := NewRoleGate(dc, cfg.EntryGateRequiredRoles)
		return NewManager(cfg, st, dc, reporter, persister, gate), nil
	})
}
