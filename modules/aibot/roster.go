package aibot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/realtime-chat/domain/chat"
)

// Bot is a synthetic room participant.
type Bot struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// Roster maps rooms to their bot.
type Roster struct {
	byRoom map[string]Bot
	names  map[string]struct{} // normalized bot names
}

// ParseRoster parses "room=BotName,room2=Other". Blank entries are ignored.
func ParseRoster(entries string) (*Roster, error) {
	r := &Roster{
		byRoom: make(map[string]Bot),
		names:  make(map[string]struct{}),
	}
	for _, item := range strings.Split(entries, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		room, name, ok := strings.Cut(item, "=")
		room, name = strings.TrimSpace(room), strings.TrimSpace(name)
		if !ok || room == "" || name == "" {
			return nil, fmt.Errorf("invalid bot entry %q, want room=Name", item)
		}
		if _, dup := r.byRoom[room]; dup {
			return nil, fmt.Errorf("room %q has more than one bot", room)
		}
		r.byRoom[room] = Bot{Name: name, Room: room}
		r.names[chat.NormalizeName(name)] = struct{}{}
	}
	return r, nil
}

// ForRoom returns the bot assigned to room.
func (r *Roster) ForRoom(room string) (Bot, bool) {
	b, ok := r.byRoom[room]
	return b, ok
}

// All returns every bot ordered by room.
func (r *Roster) All() []Bot {
	bots := make([]Bot, 0, len(r.byRoom))
	for _, b := range r.byRoom {
		bots = append(bots, b)
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].Room < bots[j].Room })
	return bots
}

// IsReserved reports whether name belongs to a bot, case-insensitively.
func (r *Roster) IsReserved(name string) bool {
	_, ok := r.names[chat.NormalizeName(name)]
	return ok
}
