package incident

import (
	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/discord"
	"github.com/foxseedlab/modbot/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Reporter, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewReporter(dc, wh, cfg.ErrorChannelID), nil
	})
}
