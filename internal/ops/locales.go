package ops

import (
	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/locale"
)

// LocalesOutput lists the registered locale profiles in detection order.
type LocalesOutput struct {
	Items []locale.Info `json:"items"`
}

// Locales describes every profile the parser can detect or be forced to use.
func Locales(cfg *config.Config) (*LocalesOutput, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return &LocalesOutput{
		Items: lo.Map(reg.Profiles(), func(p *locale.Profile, _ int) locale.Info {
			return p.Info()
		}),
	}, nil
}
