package processors

import (
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

type InteractionTracker struct {
	log   *zap.Logger
	npcs  int
	items int
	doors int
	menus int
}

func NewInteractionTracker(bus sdk.Bus, log *zap.Logger) *InteractionTracker {
	p := &InteractionTracker{log: log}
	bus.Subscribe(sdk.NPCInteraction, func(sdk.Event) error {
		p.npcs++
		p.log.Debug("npc interaction", zap.Int("count", p.npcs))
		return nil
	})
	bus.Subscribe(sdk.ItemCollected, func(ev sdk.Event) error {
		p.items++
		item, ok := ev.String("item")
		if !ok {
			item = "unknown"
		}
		p.log.Debug("item collected", zap.String("item", item))
		return nil
	})
	bus.Subscribe(sdk.DoorOpened, func(sdk.Event) error { p.doors++; return nil })
	bus.Subscribe(sdk.MenuOpened, func(sdk.Event) error { p.menus++; return nil })
	return p
}

func (p *InteractionTracker) Name() string { return "interaction_tracker" }

func (p *InteractionTracker) Statistics() sdk.Statistics {
	return sdk.Statistics{
		"npc_interactions": p.npcs,
		"items_collected":  p.items,
		"doors_opened":     p.doors,
		"menus_opened":     p.menus,
	}
}
