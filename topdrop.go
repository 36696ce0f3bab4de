/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Top Drop live rounds
//
// Players gather in a game, the host picks a category, and a ranked list is
// generated for it while everyone watches the progress. Players then race to
// name entries on the list; each entry scores its rank, so the deep cuts are
// worth the most.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - First connection to a game becomes host
// - Host can generate rounds, end a round early, lock the lobby and kick players
// - Players identified by cookie (playerID)
// - Duplicate usernames prevented across players
// - Misses and repeats are only reported to the guesser
// - Scores carry over between rounds of the same game
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/topdrop/internal/ingest"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxUsernameLength = 32
	maxGuessLength    = 200
	maxGameIDLength   = 32

	// progressStep is the smallest change in percent worth broadcasting.
	progressStep = 5
)

// Player holds the data we store server-side
type Player struct {
	PlayerID string
	Username string
	Score    int
}

// Messages coming from clients
type ClientMessage struct {
	Type           string `json:"type"`                      // "join", "generate", "guess", "reveal_all", "kick", "lock_lobby"
	Username       string `json:"username,omitempty"`        // join
	Category       string `json:"category,omitempty"`        // generate
	Count          int    `json:"count,omitempty"`           // generate
	Guess          string `json:"guess,omitempty"`           // guess
	TargetUsername string `json:"target_username,omitempty"` // kick
	Lock           *bool  `json:"lock,omitempty"`            // lock_lobby
}

// SimpleMessage is for generic notifications ("kicked", "miss", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionInfoMessage is sent immediately on connect so the client knows
// whether the lobby is locked and what role this cookie has.
type SessionInfoMessage struct {
	Type        string `json:"type"`               // "session_info"
	GameID      string `json:"game_id"`            // this game
	LobbyLocked bool   `json:"lobby_locked"`       // current lobby lock state
	IsExisting  bool   `json:"is_existing"`        // true if this cookie already has a player
	IsHost      bool   `json:"is_host"`            // true if this cookie is the host
	Username    string `json:"username,omitempty"` // known username for this cookie, if any
}

// LobbyStateMessage informs clients about lock/unlock changes.
type LobbyStateMessage struct {
	Type   string `json:"type"` // "lobby_state"
	Locked bool   `json:"locked"`
}

type ScoreEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// ScoreboardMessage lists every player, best score first.
type ScoreboardMessage struct {
	Type    string       `json:"type"` // "scoreboard"
	Players []ScoreEntry `json:"players"`
}

// ProgressMessage reports how far along the current generation is.
type ProgressMessage struct {
	Type     string `json:"type"` // "stream_progress"
	Category string `json:"category"`
	Progress int    `json:"progress"` // 0-100
}

type RevealedItem struct {
	Rank    int    `json:"rank"`
	Name    string `json:"name"`
	Guesser string `json:"guesser"`
}

// RoundReadyMessage announces a new round. Late joiners get it too, along
// with whatever has been revealed so far.
type RoundReadyMessage struct {
	Type       string         `json:"type"` // "round_ready"
	SnapshotID string         `json:"snapshot_id"`
	Category   string         `json:"category"`
	Size       int            `json:"size"`
	Revealed   []RevealedItem `json:"revealed"`
}

// GuessResultMessage is broadcast when an entry is found.
type GuessResultMessage struct {
	Type    string `json:"type"` // "guess_result"
	Guesser string `json:"guesser"`
	Guess   string `json:"guess"`
	Rank    int    `json:"rank"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Tier    string `json:"tier"`
}

// RoundOverMessage reveals the full list.
type RoundOverMessage struct {
	Type     string          `json:"type"` // "round_over"
	Category string          `json:"category"`
	Items    []snapshot.Item `json:"items"`
	Revealed []RevealedItem  `json:"revealed"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	ip       string
}

type clientRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	a       *app
	clients map[*Client]bool
	players []Player

	register chan *Client
	unreg    chan *Client
	joins    chan clientRequest
	hostCmds chan clientRequest
	guesses  chan clientRequest

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex

	createdAt    time.Time
	lastActive   time.Time
	lobbyLocked  bool
	hostPlayerID string

	generating bool
	category   string
	progress   int
	round      *snapshot.Snapshot
	revealed   map[int]string // rank -> username
	roundOver  bool
}

func newHub(a *app, gameID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()

	return &Hub{
		id:         gameID,
		a:          a,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		joins:      make(chan clientRequest),
		hostCmds:   make(chan clientRequest),
		guesses:    make(chan clientRequest),
		ctx:        ctx,
		cancel:     cancel,
		createdAt:  now,
		lastActive: now,
		revealed:   make(map[int]string),
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

			if c.playerID != "" {
				go h.scheduleRemoval(c.playerID, h.a.cfg.playerTimeout)
			}

		case req := <-h.joins:
			h.handleJoin(req)

		case req := <-h.hostCmds:
			h.handleHostCommand(req)

		case req := <-h.guesses:
			h.handleGuess(req)
		}
	}
}

// sendLocked queues msg for one client, dropping the client if it has
// fallen too far behind. h.mu must be held.
func (h *Hub) sendLocked(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

func (h *Hub) playerLocked(playerID string) *Player {
	for i := range h.players {
		if h.players[i].PlayerID == playerID {
			return &h.players[i]
		}
	}

	return nil
}

func (h *Hub) scoreboardLocked() ScoreboardMessage {
	entries := make([]ScoreEntry, 0, len(h.players))
	for _, p := range h.players {
		entries = append(entries, ScoreEntry{Username: p.Username, Score: p.Score})
	}

	slices.SortFunc(entries, func(x, y ScoreEntry) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}

		return cmp.Compare(x.Username, y.Username)
	})

	return ScoreboardMessage{Type: "scoreboard", Players: entries}
}

func (h *Hub) revealedLocked() []RevealedItem {
	out := make([]RevealedItem, 0, len(h.revealed))
	if h.round == nil {
		return out
	}

	for _, item := range h.round.Items {
		if guesser, ok := h.revealed[item.Rank]; ok {
			out = append(out, RevealedItem{Rank: item.Rank, Name: item.Name, Guesser: guesser})
		}
	}

	return out
}

func (h *Hub) roundReadyLocked() RoundReadyMessage {
	return RoundReadyMessage{
		Type:       "round_ready",
		SnapshotID: h.round.ID,
		Category:   h.round.Title,
		Size:       h.round.Size(),
		Revealed:   h.revealedLocked(),
	}
}

func (h *Hub) roundOverLocked() RoundOverMessage {
	return RoundOverMessage{
		Type:     "round_over",
		Category: h.round.Title,
		Items:    h.round.Items,
		Revealed: h.revealedLocked(),
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	// First connection becomes host
	if h.hostPlayerID == "" {
		h.hostPlayerID = c.playerID
	}

	h.clients[c] = true

	info := SessionInfoMessage{
		Type:        "session_info",
		GameID:      h.id,
		LobbyLocked: h.lobbyLocked,
		IsHost:      h.hostPlayerID == c.playerID,
	}

	if p := h.playerLocked(c.playerID); p != nil {
		info.IsExisting = true
		info.Username = p.Username
	}

	h.sendLocked(c, info)
	h.sendLocked(c, h.scoreboardLocked())

	switch {
	case h.generating:
		h.sendLocked(c, ProgressMessage{Type: "stream_progress", Category: h.category, Progress: h.progress})
	case h.round != nil && h.roundOver:
		h.sendLocked(c, h.roundOverLocked())
	case h.round != nil:
		h.sendLocked(c, h.roundReadyLocked())
	}
}

// scheduleRemoval waits for d, and if no client with this playerID
// is currently connected, removes that player's entry and broadcasts
// the updated scoreboard.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	select {
	case <-time.After(d):
	case <-h.ctx.Done():
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return
		}
	}

	if !h.removePlayerLocked(playerID) {
		return
	}

	h.lastActive = time.Now()

	h.broadcastLocked(h.scoreboardLocked())
}

func (h *Hub) removePlayerLocked(playerID string) bool {
	before := len(h.players)

	h.players = slices.DeleteFunc(h.players, func(p Player) bool {
		return p.PlayerID == playerID
	})

	return len(h.players) != before
}

// handleJoin processes "join" messages.
func (h *Hub) handleJoin(req clientRequest) {
	c := req.client

	username := sanitizeText(req.msg.Username)
	if username == "" || c.playerID == "" {
		return
	}

	if utf8.RuneCountInString(username) > maxUsernameLength {
		username = string([]rune(username)[:maxUsernameLength])
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	existing := h.playerLocked(c.playerID)

	if h.lobbyLocked && existing == nil {
		h.sendLocked(c, SimpleMessage{
			Type:    "lobby_locked",
			Message: "The lobby is locked; no new players may join.",
		})

		return
	}

	for _, p := range h.players {
		if p.PlayerID != c.playerID && strings.EqualFold(p.Username, username) {
			h.sendLocked(c, SimpleMessage{
				Type:    "collision",
				Message: "That username is already taken. Please choose a different username.",
			})

			return
		}
	}

	if existing != nil {
		existing.Username = username
	} else {
		h.players = append(h.players, Player{
			PlayerID: c.playerID,
			Username: username,
		})
		logf(h.a.cfg, "GAMES: Player %q joined %s", username, h.id)
	}

	h.sendLocked(c, SimpleMessage{Type: "joined", Message: username})
	h.broadcastLocked(h.scoreboardLocked())
}

// handleHostCommand processes host commands: start a round, end it early,
// lock/unlock the lobby, kick users.
func (h *Hub) handleHostCommand(req clientRequest) {
	c := req.client
	msg := req.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	// Only the host may issue these commands
	if h.hostPlayerID == "" || c.playerID != h.hostPlayerID {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "Only the host can do that."})

		return
	}

	switch msg.Type {
	case "generate":
		h.startRoundLocked(c, msg)

	case "reveal_all":
		if h.round == nil || h.roundOver || h.generating {
			return
		}

		h.roundOver = true
		logf(h.a.cfg, "GAMES: Host ended round %q in %s", h.round.Title, h.id)
		h.broadcastLocked(h.roundOverLocked())

	case "lock_lobby":
		h.lobbyLocked = msg.Lock != nil && *msg.Lock

		h.broadcastLocked(LobbyStateMessage{
			Type:   "lobby_state",
			Locked: h.lobbyLocked,
		})

	case "kick":
		var kicked string
		for _, p := range h.players {
			if p.Username == msg.TargetUsername {
				kicked = p.PlayerID

				break
			}
		}

		if kicked == "" || kicked == h.hostPlayerID || !h.removePlayerLocked(kicked) {
			return
		}

		for client := range h.clients {
			if client.playerID == kicked {
				h.sendLocked(client, SimpleMessage{
					Type:    "kicked",
					Message: "You have been removed by the host.",
				})

				if h.clients[client] {
					delete(h.clients, client)
					close(client.send)
				}
			}
		}

		logf(h.a.cfg, "GAMES: Host kicked %q from %s", msg.TargetUsername, h.id)
		h.broadcastLocked(h.scoreboardLocked())
	}
}

func (h *Hub) startRoundLocked(c *Client, msg ClientMessage) {
	if h.generating {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "A list is already being generated."})

		return
	}

	category, err := cleanCategory(msg.Category)
	if err != nil {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "Please enter a category."})

		return
	}

	count, err := h.a.itemCount(msg.Count)
	if err != nil {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: err.Error()})

		return
	}

	if !h.a.limiter.allow(c.ip) {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "Too many lists generated. Please wait a minute."})

		return
	}

	h.generating = true
	h.category = category
	h.progress = 0

	h.broadcastLocked(ProgressMessage{Type: "stream_progress", Category: category})

	go h.generate(roundRequest{Category: category, Count: count})
}

// generate builds a round in the background, relaying progress to every
// client as items arrive.
func (h *Hub) generate(req roundRequest) {
	last := 0

	snap, _, err := h.a.buildRound(h.ctx, req, func(ev ingest.Event) bool {
		if ev.Kind != ingest.KindItem {
			return true
		}

		p := min(ev.Progress, 100)
		if p == last || (p-last < progressStep && p < 100) {
			return true
		}
		last = p

		h.mu.Lock()
		h.progress = p
		h.broadcastLocked(ProgressMessage{Type: "stream_progress", Category: req.Category, Progress: p})
		h.mu.Unlock()

		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	h.generating = false
	h.lastActive = time.Now()

	if err != nil {
		if h.ctx.Err() != nil {
			return
		}

		h.a.cfg.getLogger().Error("generating round", "game", h.id, "category", req.Category, "err", err)
		h.broadcastLocked(SimpleMessage{Type: "error", Message: "The list could not be generated. Please try again."})

		return
	}

	h.round = snap
	h.revealed = make(map[int]string)
	h.roundOver = false

	logf(h.a.cfg, "GAMES: Round %q (%s) ready in %s", snap.Title, snap.ID, h.id)

	h.broadcastLocked(h.roundReadyLocked())
	h.broadcastLocked(h.scoreboardLocked())
}

// handleGuess processes a player's guess during a round.
func (h *Hub) handleGuess(req clientRequest) {
	c := req.client

	guess := strings.TrimSpace(req.msg.Guess)
	if c.playerID == "" || guess == "" {
		return
	}

	if utf8.RuneCountInString(guess) > maxGuessLength {
		guess = string([]rune(guess)[:maxGuessLength])
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	guesser := h.playerLocked(c.playerID)
	if guesser == nil {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "Join the game before guessing."})

		return
	}

	if h.round == nil || h.generating || h.roundOver {
		h.sendLocked(c, SimpleMessage{Type: "error", Message: "There is no round in progress."})

		return
	}

	result := h.a.indexes.get(h.round).Resolve(guess)
	guessesTotal.WithLabelValues(result.Tier.String()).Inc()

	if !result.Found {
		h.sendLocked(c, SimpleMessage{Type: "miss", Message: guess})

		return
	}

	if who, ok := h.revealed[result.Item.Rank]; ok {
		h.sendLocked(c, SimpleMessage{
			Type:    "already_revealed",
			Message: result.Item.Name + " was already found by " + who + ".",
		})

		return
	}

	h.revealed[result.Item.Rank] = guesser.Username
	guesser.Score += result.Points

	logf(h.a.cfg, "GAMES: %q found #%d %q (%s) in %s", guesser.Username, result.Item.Rank, result.Item.Name, result.Tier, h.id)

	h.broadcastLocked(GuessResultMessage{
		Type:    "guess_result",
		Guesser: guesser.Username,
		Guess:   guess,
		Rank:    result.Item.Rank,
		Name:    result.Item.Name,
		Points:  result.Points,
		Tier:    result.Tier.String(),
	})
	h.broadcastLocked(h.scoreboardLocked())

	if len(h.revealed) == h.round.Size() {
		h.roundOver = true
		h.broadcastLocked(h.roundOverLocked())
	}
}

// closeAll stops the hub and disconnects all of its clients.
func (h *Hub) closeAll() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "topdrop_id"

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		cfg.getLogger().Error("generating player id", "err", err)

		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func validGameID(id string) bool {
	if id == "" || len(id) > maxGameIDLength {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	a           *app
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	quit        chan struct{}
	stopOnce    sync.Once
}

func newGameManager(a *app, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		a:           a,
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.a, gameID)
	gm.hubs[gameID] = hub
	activeGames.Set(float64(len(gm.hubs)))
	go hub.run()
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.quit:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				logf(gm.a.cfg, "GAMES: Reaped idle game %s", id)
				go hub.closeAll()
			}
		}
		activeGames.Set(float64(len(gm.hubs)))
		gm.mu.Unlock()
	}
}

// stop ends the reaper and every running game.
func (gm *GameManager) stop() {
	gm.stopOnce.Do(func() {
		close(gm.quit)

		gm.mu.Lock()
		defer gm.mu.Unlock()

		for id, hub := range gm.hubs {
			delete(gm.hubs, id)
			hub.closeAll()
		}
		activeGames.Set(0)
	})
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if !validGameID(gameID) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(gameID)

		// Carry a freshly minted cookie on the upgrade response.
		header := http.Header{}
		for _, v := range w.Header().Values("Set-Cookie") {
			header.Add("Set-Cookie", v)
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			logf(cfg, "SERVE: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 64),
			playerID: playerID,
			ip:       clientHost(r),
		}

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		var dst chan clientRequest

		switch msg.Type {
		case "join":
			dst = h.joins
		case "generate", "reveal_all", "lock_lobby", "kick":
			dst = h.hostCmds
		case "guess":
			dst = h.guesses
		default:
			// ignore unknown types
			continue
		}

		select {
		case dst <- clientRequest{client: c, msg: msg}:
		case <-h.ctx.Done():
			return
		}
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

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validGameID(ps.ByName("gameid")) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validGameID(ps.ByName("gameid")) {
			http.NotFound(w, r)
			return
		}

		data, err := readPage(cfg, "topdrop.html")
		if err != nil {
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(cfg, w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerTopDropGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerTopDropGame(a *app, path string, mux *httprouter.Router) *GameManager {
	cfg := a.cfg
	gm := newGameManager(a, cfg.sessionTimeout)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))

	return gm
}
