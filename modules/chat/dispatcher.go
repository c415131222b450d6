package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	domain "github.com/example/realtime-chat/domain/chat"
	"github.com/example/realtime-chat/modules/aibot"
	"github.com/example/realtime-chat/modules/history"
	"github.com/example/realtime-chat/modules/presence"
)

// Notifier fans events out to connections.
type Notifier interface {
	JoinRoom(connID, room string)
	SendTo(connID, event string, payload any)
	BroadcastRoom(room, event string, payload any, except ...string)
	BroadcastAll(event string, payload any)
}

// Bots is the AI collaborator contract.
type Bots interface {
	HandleUserJoin(room, username string)
	HandleMessage(room, username, text string)
	BotForRoom(room string) (aibot.Bot, bool)
	AllBots() []aibot.Bot
	IsReservedName(name string) bool
}

// PrivateRelay delivers and stores private messages.
type PrivateRelay interface {
	Send(senderConnID, from, to string, content domain.Content) domain.PrivateMessage
	History(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error)
	RecentChats(ctx context.Context, user string) ([]domain.RecentChat, error)
}

// Config configures the Dispatcher.
type Config struct {
	// AdminName is the display name allowed to clear rooms.
	AdminName string
}

// Dispatcher interprets realtime events per connection. It holds no state
// of its own: membership lives in the presence registry, recent messages
// in the history cache and streaming flags in the tracker.
type Dispatcher struct {
	presence  *presence.Registry
	streaming *presence.Tracker
	history   *history.Cache
	out       Notifier
	bots      Bots
	relay     PrivateRelay
	cfg       Config
	logger    types.Logger
	now       func() time.Time
}

// NewDispatcher wires a dispatcher to its collaborators.
func NewDispatcher(
	registry *presence.Registry,
	streaming *presence.Tracker,
	cache *history.Cache,
	out Notifier,
	bots Bots,
	relay PrivateRelay,
	cfg Config,
	logger types.Logger,
) *Dispatcher {
	return &Dispatcher{
		presence:  registry,
		streaming: streaming,
		history:   cache,
		out:       out,
		bots:      bots,
		relay:     relay,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle decodes one inbound frame from connID and applies it. Frames
// from the same connection must be handled in arrival order.
func (d *Dispatcher) Handle(ctx context.Context, connID string, raw []byte) error {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return d.HandleFrame(ctx, connID, f)
}

// HandleFrame applies a decoded frame.
func (d *Dispatcher) HandleFrame(ctx context.Context, connID string, f Frame) error {
	switch f.Event {
	case domain.EventEnterRoom:
		var p enterRoomPayload
		return d.decode(f, &p, func() { d.enterRoom(connID, p.Name, p.Room) })
	case domain.EventMessage:
		var p messagePayload
		return d.decode(f, &p, func() { d.message(connID, p.Text) })
	case domain.EventImageMessage:
		var p imagePayload
		return d.decode(f, &p, func() { d.media(connID, domain.ImageContent, p.Image) })
	case domain.EventVoiceMessage:
		var p voicePayload
		return d.decode(f, &p, func() { d.media(connID, domain.VoiceContent, p.Voice) })
	case domain.EventActivity:
		d.activity(connID)
	case domain.EventPrivateMessage:
		var p privateMessagePayload
		return d.decode(f, &p, func() { d.privateMessage(connID, p) })
	case domain.EventGetPrivateHistory:
		var p privateHistoryPayload
		return d.decode(f, &p, func() { d.privateHistory(ctx, connID, p.UserA, p.UserB) })
	case domain.EventGetRecentPrivateChats:
		var p userPayload
		return d.decode(f, &p, func() { d.recentChats(ctx, connID, p.User) })
	case domain.EventGetOnlineUsers:
		d.out.SendTo(connID, domain.EventOnlineUsers, d.OnlineUsers())
	case domain.EventGetUserList:
		var p roomPayload
		return d.decode(f, &p, func() { d.getUserList(connID, p.Room) })
	case domain.EventGetRooms:
		d.out.SendTo(connID, domain.EventRoomList, d.RoomList())
	case domain.EventClearRoom:
		var p roomPayload
		return d.decode(f, &p, func() { d.clearRoomAsUser(connID, p.Room) })
	case domain.EventStreamingStatusUpdate:
		var p streamingPayload
		return d.decode(f, &p, func() { d.streamingStatus(p.Username, p.IsStreaming) })
	case domain.EventHostLeftConference:
		var p HostLeft
		return d.decode(f, &p, func() { d.hostLeftConference(p.HostUsername, p.RoomName) })
	case domain.EventGetStreamingUsers:
		d.out.SendTo(connID, domain.EventStreamingUsersUpdate, d.StreamingUsers())
	case domain.EventPrivateVoiceCall:
		var p voiceCallPayload
		return d.decode(f, &p, func() { d.privateVoiceCall(connID, p) })
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return nil
}

// decode unmarshals the frame data into p and runs apply on success.
// Events without a body decode to the zero payload.
func (d *Dispatcher) decode(f Frame, p any, apply func()) error {
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, p); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Event, err)
		}
	}
	apply()
	return nil
}

func (d *Dispatcher) systemMessage(text string) domain.Message {
	content, _ := domain.TextContent(text)
	return domain.NewMessage(domain.SystemSender, content, d.now())
}

func (d *Dispatcher) sendSystem(connID, text string) {
	d.out.SendTo(connID, domain.EventMessage, d.systemMessage(text))
}

// SendSystem sends a System notice to connID only.
func (d *Dispatcher) SendSystem(connID, text string) {
	d.sendSystem(connID, text)
}

func (d *Dispatcher) joined(connID string) (domain.Connection, bool) {
	conn, ok := d.presence.Lookup(connID)
	if !ok || !conn.Joined() {
		return domain.Connection{}, false
	}
	return conn, true
}

func (d *Dispatcher) requireJoined(connID string) (domain.Connection, bool) {
	conn, ok := d.joined(connID)
	if !ok {
		d.sendSystem(connID, "You must join a room first.")
	}
	return conn, ok
}

func (d *Dispatcher) enterRoom(connID, name, room string) {
	name, room = strings.TrimSpace(name), strings.TrimSpace(room)
	if name == "" || room == "" {
		d.sendSystem(connID, "Name and room are required.")
		return
	}
	if domain.SameName(name, domain.SystemSender) || d.bots.IsReservedName(name) {
		d.sendSystem(connID, fmt.Sprintf("The name %q is reserved.", name))
		return
	}

	old, wasJoined := d.joined(connID)

	d.presence.Activate(connID, name, room)
	d.out.JoinRoom(connID, room)

	if wasJoined && old.Room != room {
		d.out.BroadcastRoom(old.Room, domain.EventMessage, d.systemMessage(fmt.Sprintf("%s has left the room", old.Name)))
		d.out.BroadcastRoom(old.Room, domain.EventUserList, d.UserList(old.Room))
	}

	d.sendSystem(connID, fmt.Sprintf("Welcome to %s, %s!", room, name))
	for _, msg := range d.history.Get(room) {
		d.out.SendTo(connID, domain.EventMessage, msg)
	}
	d.out.BroadcastRoom(room, domain.EventMessage, d.systemMessage(fmt.Sprintf("%s has joined the room", name)), connID)
	d.out.BroadcastRoom(room, domain.EventUserList, d.UserList(room))
	d.out.BroadcastAll(domain.EventRoomList, d.RoomList())

	d.logger.Info("User joined room", "connID", connID, "name", name, "room", room)
	d.bots.HandleUserJoin(room, name)
}

func (d *Dispatcher) message(connID, text string) {
	conn, ok := d.requireJoined(connID)
	if !ok {
		return
	}
	content, err := domain.TextContent(text)
	if err != nil {
		d.sendSystem(connID, "Message cannot be empty.")
		return
	}
	d.post(conn.Room, domain.NewMessage(conn.Name, content, d.now()))
	d.bots.HandleMessage(conn.Room, conn.Name, text)
}

func (d *Dispatcher) media(connID string, build func(string) (domain.Content, error), data string) {
	conn, ok := d.requireJoined(connID)
	if !ok {
		return
	}
	content, err := build(data)
	if err != nil {
		d.sendSystem(connID, fmt.Sprintf("Rejected: %v.", err))
		return
	}
	d.post(conn.Room, domain.NewMessage(conn.Name, content, d.now()))
}

func (d *Dispatcher) post(room string, msg domain.Message) {
	d.history.Append(room, msg)
	d.out.BroadcastRoom(room, domain.EventMessage, msg)
}

// PostAsBot appends a bot reply to room and broadcasts it. The message
// hook is not invoked for bot replies.
func (d *Dispatcher) PostAsBot(room, botName, text string) {
	content, err := domain.TextContent(text)
	if err != nil {
		return
	}
	d.post(room, domain.NewMessage(botName, content, d.now()))
}

func (d *Dispatcher) activity(connID string) {
	conn, ok := d.requireJoined(connID)
	if !ok {
		return
	}
	d.out.BroadcastRoom(conn.Room, domain.EventActivity, Activity{Name: conn.Name}, connID)
}

func (d *Dispatcher) privateMessage(connID string, p privateMessagePayload) {
	from := p.FromUser
	if conn, ok := d.presence.Lookup(connID); ok {
		from = conn.Name
	}
	to := strings.TrimSpace(p.ToUser)
	if from == "" || to == "" {
		d.sendSystem(connID, "Private messages need a sender and a recipient.")
		return
	}

	content, err := domain.ContentFromFields(p.Text, p.Image, p.Voice)
	if err != nil {
		d.sendSystem(connID, fmt.Sprintf("Rejected: %v.", err))
		return
	}
	d.relay.Send(connID, from, to, content)
}

func (d *Dispatcher) privateHistory(ctx context.Context, connID, userA, userB string) {
	if userA == "" || userB == "" {
		d.sendSystem(connID, "Both users are required to load private history.")
		return
	}
	msgs, err := d.relay.History(ctx, userA, userB)
	if err != nil {
		d.logger.Error("Failed to load private history", "userA", userA, "userB", userB, "error", err)
		d.sendSystem(connID, "Private history is unavailable right now.")
		return
	}
	d.out.SendTo(connID, domain.EventPrivateHistory, PrivateHistory{UserA: userA, UserB: userB, Messages: msgs})
}

func (d *Dispatcher) recentChats(ctx context.Context, connID, user string) {
	if user == "" {
		if conn, ok := d.presence.Lookup(connID); ok {
			user = conn.Name
		}
	}
	if user == "" {
		d.sendSystem(connID, "A user is required to load recent chats.")
		return
	}
	chats, err := d.relay.RecentChats(ctx, user)
	if err != nil {
		d.logger.Error("Failed to load recent chats", "user", user, "error", err)
		d.sendSystem(connID, "Recent chats are unavailable right now.")
		return
	}
	d.out.SendTo(connID, domain.EventRecentPrivateChats, RecentPrivateChats{Chats: chats})
}

func (d *Dispatcher) getUserList(connID, room string) {
	if room == "" {
		if conn, ok := d.joined(connID); ok {
			room = conn.Room
		}
	}
	d.out.SendTo(connID, domain.EventUserList, d.UserList(room))
}

func (d *Dispatcher) clearRoomAsUser(connID, room string) {
	conn, ok := d.presence.Lookup(connID)
	if !ok || !domain.SameName(conn.Name, d.cfg.AdminName) {
		d.logger.Debug("Ignoring clearRoom from non-admin", "connID", connID, "room", room)
		return
	}
	d.ClearRoom(room)
}

// ClearRoom empties the room's history and tells its members.
func (d *Dispatcher) ClearRoom(room string) int {
	n := d.history.Clear(room)
	d.out.BroadcastRoom(room, domain.EventClearRoom, RoomCleared{Room: room})
	d.out.BroadcastAll(domain.EventRoomList, d.RoomList())
	d.logger.Info("Room history cleared", "room", room, "messages", n)
	return n
}

func (d *Dispatcher) streamingStatus(username string, streaming bool) {
	if username == "" {
		return
	}
	if streaming {
		d.streaming.Add(username)
	} else {
		d.streaming.Remove(username)
	}
	d.out.BroadcastAll(domain.EventStreamingUsersUpdate, d.StreamingUsers())
}

func (d *Dispatcher) hostLeftConference(host, room string) {
	d.out.BroadcastAll(domain.EventHostLeftConference, HostLeft{HostUsername: host, RoomName: room})
	d.streaming.Remove(host)
	d.out.BroadcastAll(domain.EventStreamingUsersUpdate, d.StreamingUsers())
	d.logger.Info("Conference host left", "host", host, "room", room)
}

func (d *Dispatcher) privateVoiceCall(connID string, p voiceCallPayload) {
	from := p.FromUser
	if conn, ok := d.presence.Lookup(connID); ok {
		from = conn.Name
	}
	target, ok := d.presence.FindByName(p.ToUser)
	if !ok {
		d.out.SendTo(connID, domain.EventPrivateVoiceCallUnavailable, VoiceCallUnavailable{ToUser: p.ToUser})
		return
	}
	d.out.SendTo(target.ID, domain.EventPrivateVoiceCallPopup, VoiceCallPopup{FromUser: from, RoomName: p.RoomName})
}

// Disconnect removes the connection and notifies its former room.
func (d *Dispatcher) Disconnect(connID string) {
	conn, ok := d.presence.Deactivate(connID)
	if !ok {
		return
	}
	d.streaming.Remove(conn.Name)

	if conn.Joined() {
		d.out.BroadcastRoom(conn.Room, domain.EventMessage, d.systemMessage(fmt.Sprintf("%s has left the room", conn.Name)))
		d.out.BroadcastRoom(conn.Room, domain.EventUserList, d.UserList(conn.Room))
	}
	d.out.BroadcastAll(domain.EventRoomList, d.RoomList())
	d.out.BroadcastAll(domain.EventStreamingUsersUpdate, d.StreamingUsers())

	d.logger.Info("User disconnected", "connID", connID, "name", conn.Name, "room", conn.Room)
}

// UserList returns the members of room plus the room's bot.
func (d *Dispatcher) UserList(room string) UserList {
	members := d.presence.ListByRoom(room)
	users := make([]UserView, 0, len(members)+1)
	for _, c := range members {
		users = append(users, UserView{Name: c.Name, Room: c.Room})
	}
	if bot, ok := d.bots.BotForRoom(room); ok && room != "" {
		users = append(users, UserView{Name: bot.Name, Room: bot.Room, IsBot: true})
	}
	return UserList{Users: users}
}

// RoomList returns the rooms with members or history, sorted.
func (d *Dispatcher) RoomList() RoomList {
	seen := make(map[string]struct{})
	for _, r := range d.presence.DistinctRooms() {
		seen[r] = struct{}{}
	}
	for _, r := range d.history.Rooms() {
		seen[r] = struct{}{}
	}
	rooms := make([]string, 0, len(seen))
	for r := range seen {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return RoomList{Rooms: rooms}
}

// OnlineUsers returns every connected user and every bot.
func (d *Dispatcher) OnlineUsers() OnlineUsers {
	conns := d.presence.ListAll()
	bots := d.bots.AllBots()
	users := make([]UserView, 0, len(conns)+len(bots))
	for _, c := range conns {
		users = append(users, UserView{Name: c.Name, Room: c.Room})
	}
	for _, b := range bots {
		users = append(users, UserView{Name: b.Name, Room: b.Room, IsBot: true})
	}
	return OnlineUsers{Users: users}
}

// StreamingUsers returns the current streaming set.
func (d *Dispatcher) StreamingUsers() StreamingUsers {
	return StreamingUsers{StreamingUsers: d.streaming.List()}
}

// RoomHistory returns the cached messages for room.
func (d *Dispatcher) RoomHistory(room string) []domain.Message {
	return d.history.Get(room)
}
