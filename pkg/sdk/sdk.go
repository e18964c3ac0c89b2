// Package sdk holds the types shared between the gbstats core and the
// statistics plugins loaded at runtime.
package sdk

import "time"

// Event is an immutable record of something detected during gameplay.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Callback handles a published event. A returned error is logged by the bus
// and does not stop delivery to the other subscribers.
type Callback func(ev Event) error

// SubscriptionID identifies a single Subscribe registration.
type SubscriptionID uint64

// Bus is the public interface of the event bus.
type Bus interface {
	Publish(eventType string, payload map[string]any) Event
	Subscribe(eventType string, cb Callback) SubscriptionID
	Unsubscribe(eventType string, id SubscriptionID) bool
}

// Statistics is a point-in-time copy of a processor's counters.
type Statistics map[string]any

// StatisticsProvider is anything the report generator can pull from.
type StatisticsProvider interface {
	Name() string
	Statistics() Statistics
}

// Event types.
const (
	GameStarted    = "game_started"
	GameEnded      = "game_ended"
	GamePaused     = "game_paused"
	GameResumed    = "game_resumed"
	PlayerMoved    = "player_moved"
	MapChanged     = "map_changed"
	BattleStarted  = "battle_started"
	BattleEnded    = "battle_ended"
	PlayerDamaged  = "player_damaged"
	PlayerHealed   = "player_healed"
	PlayerFainted  = "player_fainted"
	NPCInteraction = "npc_interaction"
	ItemCollected  = "item_collected"
	DoorOpened     = "door_opened"
	MenuOpened     = "menu_opened"
	GenerateReport = "generate_report"
)

// Int reads an integer payload field. JSON-decoded payloads carry float64.
func (e Event) Int(key string) (int, bool) {
	switch v := e.Payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// String reads a string payload field.
func (e Event) String(key string) (string, bool) {
	s, ok := e.Payload[key].(string)
	return s, ok
}
