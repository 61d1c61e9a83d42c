package snapshot

import (
	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/store"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Persister, error) {
		cfg := do.MustInvoke[*config.Config](i)
		backend := do.MustInvoke[Backend](i)
		st := do.MustInvoke[*store.Store](i)
		return NewPersister(backend, st, cfg.SnapshotInterval), nil
	})
}
