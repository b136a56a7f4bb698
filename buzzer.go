// Buzzer Game
//
// A host creates a room and receives a 4-digit PIN. Players join with the
// PIN and a name (plus a team while team mode is on), the host arms the
// buzzers, and the first player to buzz locks everyone else out until the
// host resets the round.
//
// Features:
// - Single WebSocket endpoint at /ws; every game action is a JSON message
// - Rooms keyed by 4-digit PIN with server-side collision retries
// - Team mode (default on) with host-configurable team names
// - Scoreboard keyed by team in team mode, by player name in solo mode
// - Exactly one winner per armed round, regardless of buzz concurrency
// - Host-adjustable scores with broadcast scoreboard updates
// - Rooms auto-expire after a configurable idle timeout
// - In-browser QR button to share a room's join link, backed by go-qrcode

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Players without a team (team mode off) are grouped under this sentinel.
const soloTeam = "Solo"

func defaultTeams() []string {
	return []string{"Red", "Blue", "Green", "Yellow"}
}

// PlayerInfo is the per-connection player record, and the winner snapshot.
type PlayerInfo struct {
	Name string `json:"name"`
	Team string `json:"team"`
}

// Messages coming from clients
type ClientMessage struct {
	Type    string   `json:"type"`              // "createRoom", "checkRoom", "joinRoom", "toggleTeamMode", "setTeams", "updateScore", "arm", "buzz", "reset"
	Pin     string   `json:"pin,omitempty"`     // all but createRoom
	Name    string   `json:"name,omitempty"`    // joinRoom
	Team    string   `json:"team,omitempty"`    // joinRoom
	Teams   []string `json:"teams,omitempty"`   // setTeams
	Enabled bool     `json:"enabled,omitempty"` // toggleTeamMode
	Key     string   `json:"key,omitempty"`     // updateScore
	Delta   any      `json:"delta,omitempty"`   // updateScore; number or numeric string
}

// ConfigMessage carries a room's current configuration. Type is
// "roomCreated" for the creator, "roomInfo" for checkRoom, and "config"
// for joiners and mode changes.
type ConfigMessage struct {
	Type     string   `json:"type"`
	Pin      string   `json:"pin"`
	TeamMode bool     `json:"teamMode"`
	Teams    []string `json:"teams"`
}

// PlayerListMessage is the full roster, broadcast on every membership change.
type PlayerListMessage struct {
	Type    string       `json:"type"` // "playerList"
	Players []PlayerInfo `json:"players"`
}

// ScoreboardMessage is the full scoreboard, broadcast on every score change.
type ScoreboardMessage struct {
	Type   string         `json:"type"` // "scoreUpdate"
	Scores map[string]int `json:"scores"`
}

// WinnerMessage announces the accepted buzz for the current round.
type WinnerMessage struct {
	Type   string     `json:"type"` // "winner"
	Winner PlayerInfo `json:"winner"`
}

// SimpleMessage is for generic notifications ("armed", "reset",
// "roomExpired", "joinError").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string // connection identifier

	once sync.Once
}

// close shuts the send channel exactly once, after the client has been
// removed from every room, so no broadcast can race it.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// drop severs the underlying connection; full cleanup happens via the
// reader's disconnect path.
func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Room is the authoritative state of one game session. Every operation
// and the reaper's expiry of this room run under mu, which is what makes
// buzz's check-and-set indivisible.
type Room struct {
	pin string

	mu         sync.RWMutex
	teamMode   bool
	teams      []string
	players    map[string]PlayerInfo // connection id -> player
	scores     map[string]int        // team name, or player name in solo mode
	armed      bool
	winner     *PlayerInfo
	createdAt  time.Time
	lastActive time.Time

	clients map[*Client]bool
}

func newRoom(pin string) *Room {
	now := time.Now()
	return &Room{
		pin:        pin,
		teamMode:   true,
		teams:      defaultTeams(),
		players:    make(map[string]PlayerInfo),
		scores:     make(map[string]int),
		clients:    make(map[*Client]bool),
		createdAt:  now,
		lastActive: now,
	}
}

// broadcastLocked delivers msg to every subscriber. A client whose send
// buffer is full is dropped rather than blocking the room.
func (r *Room) broadcastLocked(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			delete(r.clients, client)
			client.drop()
		}
	}
}

func (r *Room) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(r.clients, c)
		c.drop()
	}
}

// Snapshot helpers: outbound payloads are copies, since they are
// serialized later by each client's write pump.

func (r *Room) configLocked(msgType string) ConfigMessage {
	return ConfigMessage{
		Type:     msgType,
		Pin:      r.pin,
		TeamMode: r.teamMode,
		Teams:    slices.Clone(r.teams),
	}
}

func (r *Room) playerListLocked() PlayerListMessage {
	players := make([]PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b PlayerInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return PlayerListMessage{Type: "playerList", Players: players}
}

func (r *Room) scoreboardLocked() ScoreboardMessage {
	scores := make(map[string]int, len(r.scores))
	for k, v := range r.scores {
		scores[k] = v
	}
	return ScoreboardMessage{Type: "scoreUpdate", Scores: scores}
}

// scoreKeyLocked maps a player to the scoreboard entry they feed.
func (r *Room) scoreKeyLocked(p PlayerInfo) string {
	if r.teamMode {
		return p.Team
	}
	return p.Name
}

// subscribe registers a connection for room broadcasts without making it
// a player. Used for the creating host.
func (r *Room) subscribe(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c] = true
}

func (r *Room) config(msgType string) ConfigMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.configLocked(msgType)
}

// join validates and admits a player. Nothing is mutated on failure.
func (r *Room) join(c *Client, name, team string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return errInvalidName
	}

	if r.teamMode {
		team = strings.TrimSpace(team)
		if team == "" || !slices.Contains(r.teams, team) {
			return errTeamRequired
		}
	} else {
		team = soloTeam
	}

	r.lastActive = time.Now()
	r.clients[c] = true

	player := PlayerInfo{Name: name, Team: team}
	r.players[c.id] = player

	key := r.scoreKeyLocked(player)
	if _, ok := r.scores[key]; !ok {
		r.scores[key] = 0
	}

	r.broadcastLocked(r.playerListLocked())
	r.broadcastLocked(r.scoreboardLocked())
	r.sendLocked(c, r.configLocked("config"))

	return nil
}

// setTeamMode toggles team mode. Turning it off moves every player onto
// the Solo sentinel; turning it on moves Solo players onto the first
// configured team. Either direction discards the old scoreboard and
// rebuilds it under the new keying.
func (r *Room) setTeamMode(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if enabled != r.teamMode {
		r.teamMode = enabled
		r.scores = make(map[string]int, len(r.players))

		for id, p := range r.players {
			if enabled {
				if !slices.Contains(r.teams, p.Team) {
					p.Team = r.teams[0]
				}
			} else {
				p.Team = soloTeam
			}
			r.players[id] = p

			if _, ok := r.scores[r.scoreKeyLocked(p)]; !ok {
				r.scores[r.scoreKeyLocked(p)] = 0
			}
		}
	}

	r.lastActive = time.Now()

	r.broadcastLocked(r.configLocked("config"))
	r.broadcastLocked(r.playerListLocked())
	r.broadcastLocked(r.scoreboardLocked())
}

// setTeams replaces the team list while team mode is on; a no-op
// otherwise, or when trimming and deduplication leave nothing. Players on
// a removed team keep their stale team value.
func (r *Room) setTeams(teams []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.teamMode {
		return false
	}

	cleaned := make([]string, 0, len(teams))
	seen := make(map[string]bool, len(teams))
	for _, team := range teams {
		team = strings.TrimSpace(team)
		if team == "" || seen[team] {
			continue
		}
		seen[team] = true
		cleaned = append(cleaned, team)
	}
	if len(cleaned) == 0 {
		return false
	}

	r.teams = cleaned
	for _, team := range cleaned {
		if _, ok := r.scores[team]; !ok {
			r.scores[team] = 0
		}
	}

	r.lastActive = time.Now()

	r.broadcastLocked(r.configLocked("roomInfo"))
	r.broadcastLocked(r.scoreboardLocked())

	return true
}

// updateScore adjusts an existing scoreboard entry. Unknown keys are
// ignored; scores are only ever created by join and setTeams.
func (r *Room) updateScore(key string, delta int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scores[key]; !ok {
		return false
	}

	r.scores[key] += delta
	r.lastActive = time.Now()

	r.broadcastLocked(r.scoreboardLocked())

	return true
}

// arm opens a round. Re-arming an armed room is harmless.
func (r *Room) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armed = true
	r.winner = nil
	r.lastActive = time.Now()

	r.broadcastLocked(SimpleMessage{Type: "armed"})
}

// buzz accepts the first qualifying buzz of an armed round. The armed and
// winner checks and the winner write all happen under the room lock, so
// at most one caller per round can win.
func (r *Room) buzz(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.armed || r.winner != nil {
		return false
	}

	player, ok := r.players[c.id]
	if !ok {
		return false
	}

	r.winner = &player
	r.armed = false
	r.lastActive = time.Now()

	r.broadcastLocked(WinnerMessage{Type: "winner", Winner: player})

	return true
}

// reset closes the round without arming.
func (r *Room) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.armed = false
	r.winner = nil
	r.lastActive = time.Now()

	r.broadcastLocked(SimpleMessage{Type: "reset"})
}

// removeClient drops a connection's subscription and, if it was a player,
// its roster entry. Score keys survive departures.
func (r *Room) removeClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c)

	if _, ok := r.players[c.id]; !ok {
		return false
	}

	delete(r.players, c.id)
	r.lastActive = time.Now()

	r.broadcastLocked(r.playerListLocked())

	return true
}

// expireBefore ends the room if it has been idle since before cutoff:
// subscribers get a roomExpired notice, then their connections are
// severed. Returns false if the room saw activity after the cutoff.
func (r *Room) expireBefore(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastActive.Before(cutoff) {
		return false
	}

	r.broadcastLocked(SimpleMessage{Type: "roomExpired", Message: "This room expired due to inactivity."})

	for client := range r.clients {
		delete(r.clients, client)
		client.drop()
	}

	return true
}

// BuzzerServer dispatches inbound actions against the room store.
type BuzzerServer struct {
	cfg   *Config
	store *RoomStore
}

func newBuzzerServer(cfg *Config) *BuzzerServer {
	return &BuzzerServer{
		cfg:   cfg,
		store: newRoomStore(cfg),
	}
}

// sendTo delivers a message to a single connection outside any room.
func (s *BuzzerServer) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		c.drop()
	}
}

func (s *BuzzerServer) sendError(c *Client, err error) {
	s.sendTo(c, SimpleMessage{Type: "joinError", Message: err.Error()})
}

// toDelta coerces a score delta to an integer; non-numeric input counts
// as zero rather than failing the message.
func toDelta(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	case int:
		return n
	}
	return 0
}

// dispatch routes one inbound action. Unknown types and stale PINs on
// room-scoped actions are ignored; only checkRoom and joinRoom answer
// failures with joinError.
func (s *BuzzerServer) dispatch(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "createRoom":
		s.handleCreate(c)

	case "checkRoom":
		room, ok := s.store.get(msg.Pin)
		if !ok {
			s.sendError(c, errRoomNotFound)
			return
		}
		s.sendTo(c, room.config("roomInfo"))

	case "joinRoom":
		room, ok := s.store.get(msg.Pin)
		if !ok {
			s.sendError(c, errRoomNotFound)
			return
		}
		if err := room.join(c, msg.Name, msg.Team); err != nil {
			s.sendError(c, err)
			return
		}
		logf(s.cfg, "ROOMS: Player %q joined %s", strings.TrimSpace(msg.Name), msg.Pin)

	case "toggleTeamMode":
		if room, ok := s.store.get(msg.Pin); ok {
			room.setTeamMode(msg.Enabled)
		}

	case "setTeams":
		if room, ok := s.store.get(msg.Pin); ok {
			room.setTeams(msg.Teams)
		}

	case "updateScore":
		if room, ok := s.store.get(msg.Pin); ok {
			room.updateScore(msg.Key, toDelta(msg.Delta))
		}

	case "arm":
		if room, ok := s.store.get(msg.Pin); ok {
			room.arm()
		}

	case "buzz":
		if room, ok := s.store.get(msg.Pin); ok {
			room.buzz(c)
		}

	case "reset":
		if room, ok := s.store.get(msg.Pin); ok {
			room.reset()
		}

	default:
		// ignore unknown types
	}
}

func (s *BuzzerServer) handleCreate(c *Client) {
	room, err := s.store.create()
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.subscribe(c)
	s.sendTo(c, room.config("roomCreated"))

	logf(s.cfg, "ROOMS: Created room %s", room.pin)
}

// disconnect removes a connection from every room it belongs to and
// broadcasts the updated rosters.
func (s *BuzzerServer) disconnect(c *Client) {
	for _, room := range s.store.snapshot() {
		room.removeClient(c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *BuzzerServer) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		go client.writePump()
		s.readPump(client)
	}
}

func (s *BuzzerServer) readPump(c *Client) {
	defer func() {
		s.disconnect(c)
		c.close()
		c.drop()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		s.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for a room's join URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")
	if pin == "" {
		http.Error(w, "missing room pin", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /room/:pin/qr; strip trailing "/qr" to get the join URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerBuzzer sets up routes so that:
//   - /                → host/player client (HTML)
//   - /room/:pin       → client with the PIN prefilled
//   - /room/:pin/qr    → PNG QR code for that room's join URL
//   - /ws              → the WebSocket all game actions flow over
func registerBuzzer(cfg *Config, mux *httprouter.Router) *BuzzerServer {
	srv := newBuzzerServer(cfg)

	mux.GET(cfg.prefix+"/", getIndexHandler(cfg))
	mux.GET(cfg.prefix+"/room/:pin", getIndexHandler(cfg))
	mux.GET(cfg.prefix+"/room/:pin/qr", qrHandler)

	mux.GET(cfg.prefix+"/assets/buzzer/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/buzzer/app.js", getJsHandler(cfg))

	mux.GET(cfg.prefix+"/ws", srv.serveWS())

	return srv
}
