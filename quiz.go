/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Song Quiz sessions
//
// Every game ID owns one Hub. The hub's run goroutine is the only place the
// quiz engine is touched: websocket messages, timers and background lookups
// are all posted onto it and executed in order.
//
// Features:
// - WebSockets per game ID: /quiz/:gameid and /quiz/:gameid/ws
// - Everyone connected to a game shares one session and one speaker
// - Players identified by cookie (playerID)
// - Collections are loaded in the background when the game is created
// - Games left without players are forfeited after the player timeout
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/songquiz/catalog"
	"github.com/Seednode/songquiz/games/quiz"
	"github.com/Seednode/songquiz/media"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Messages coming from clients
type ClientMessage struct {
	Type    string `json:"type"`               // "start", "guess", "lifeline", "next", "give_up", "replay", "ready"
	Rounds  int    `json:"rounds,omitempty"`   // start
	MinYear int    `json:"min_year,omitempty"` // start
	MaxYear int    `json:"max_year,omitempty"` // start
	Text    string `json:"text,omitempty"`     // guess
	Kind    string `json:"kind,omitempty"`     // lifeline
	Token   uint64 `json:"token,omitempty"`    // ready
}

// StateMessage carries the full view of the game after every change.
type StateMessage struct {
	Type string `json:"type"` // "state"
	quiz.Snapshot
	Players int `json:"players"`
}

// AudioMessage drives the shared player in every browser.
type AudioMessage struct {
	Type  string  `json:"type"` // "audio"
	Op    string  `json:"op"`   // "load", "play" or "stop"
	Ref   string  `json:"ref,omitempty"`
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Token uint64  `json:"token"`
	// At is the unix millisecond time playback started, so late joiners
	// can seek to the current position.
	At int64 `json:"at,omitempty"`
}

type FeedbackMessage struct {
	Type string        `json:"type"` // "feedback"
	Kind quiz.Feedback `json:"kind"`
}

// GuessResultMessage is sent only to the client that guessed.
type GuessResultMessage struct {
	Type string `json:"type"` // "guess_result"
	quiz.GuessResult
}

// CollectionMessage describes what this game is playing.
type CollectionMessage struct {
	Type       string              `json:"type"` // "collection"
	Collection *catalog.Collection `json:"collection"`
	Mode       quiz.Mode           `json:"mode"`
}

// SimpleMessage is for generic notifications ("error").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

// Hub is one game session and the event loop that owns it.
type Hub struct {
	id           string
	cfg          *Config
	log          zerolog.Logger
	loader       *catalog.Loader
	prober       *media.Prober
	collectionID string
	mode         quiz.Mode

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	createdAt  time.Time
	lastActive atomic.Int64

	// Owned by the run goroutine.
	halted     bool
	clients    map[*Client]bool
	collection *catalog.Collection
	loadErr    error
	game       *quiz.Game
	audio      *hubAudio
	abandon    func() bool
}

func newHub(cfg *Config, gameID, collectionID string, mode quiz.Mode, loader *catalog.Loader, prober *media.Prober) *Hub {
	now := time.Now()

	h := &Hub{
		id:           gameID,
		cfg:          cfg,
		log:          cfg.log.With().Str("game", gameID).Str("collection", collectionID).Str("mode", mode.Name).Logger(),
		loader:       loader,
		prober:       prober,
		collectionID: collectionID,
		mode:         mode,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		createdAt:    now,
		clients:      make(map[*Client]bool),
	}
	h.audio = &hubAudio{h: h}
	h.touch()

	return h
}

// Post queues fn on the hub's loop. Work posted after the hub stops is
// dropped.
func (h *Hub) Post(fn func()) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, fn)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() {
		h.Post(fn)
	})
	return t.Stop
}

func (h *Hub) Go(fn func()) {
	go fn()
}

func (h *Hub) Now() time.Time {
	return time.Now()
}

func (h *Hub) take() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	fns := h.queue
	h.queue = nil

	return fns
}

func (h *Hub) run() {
	defer close(h.done)

	h.Go(h.loadCollection)

	for range h.wake {
		for {
			fns := h.take()
			if len(fns) == 0 {
				break
			}
			for _, fn := range fns {
				fn()
				if h.halted {
					return
				}
			}
		}
	}
}

func (h *Hub) touch() {
	h.lastActive.Store(time.Now().UnixNano())
}

func (h *Hub) idleSince() time.Time {
	return time.Unix(0, h.lastActive.Load())
}

func (h *Hub) loadCollection() {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.fetchTimeout)
	defer cancel()

	c, err := h.loader.Load(ctx, h.collectionID)

	h.Post(func() {
		h.collectionLoaded(c, err)
	})
}

func (h *Hub) collectionLoaded(c *catalog.Collection, err error) {
	if err != nil {
		h.loadErr = err
		h.log.Warn().Err(err).Msg("Could not load collection")
		h.broadcast(SimpleMessage{Type: "error", Message: catalog.ErrCollectionUnavailable.Error()})

		return
	}

	logger := h.log.With().Str("component", "engine").Logger()

	game, err := quiz.New(quiz.Config{
		Songs:      c.Songs,
		Style:      c.Style,
		Mode:       h.mode,
		Disabled:   c.DisabledLifelines,
		Loop:       h,
		Audio:      h.audio,
		Durations:  h.prober,
		Covers:     h.prober,
		OnChange:   h.broadcastState,
		OnFeedback: h.broadcastFeedback,
		Logger:     &logger,
	})
	if err != nil {
		h.loadErr = err
		h.log.Error().Err(err).Msg("Could not create game")
		h.broadcast(SimpleMessage{Type: "error", Message: catalog.ErrCollectionUnavailable.Error()})

		return
	}

	h.collection = c
	h.game = game

	h.log.Info().Int("songs", c.SongCount).Msg("Game ready")

	h.broadcast(h.collectionMessage())
	h.broadcastState()
}

func (h *Hub) collectionMessage() CollectionMessage {
	return CollectionMessage{
		Type:       "collection",
		Collection: h.collection,
		Mode:       h.mode,
	}
}

func (h *Hub) stateMessage() StateMessage {
	return StateMessage{
		Type:     "state",
		Snapshot: h.game.Snapshot(),
		Players:  len(h.clients),
	}
}

// send queues msg for one client, dropping clients that cannot keep up.
func (h *Hub) send(c *Client, msg any) {
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

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.send(c, msg)
	}
}

func (h *Hub) broadcastState() {
	if h.game == nil {
		return
	}
	h.broadcast(h.stateMessage())
}

func (h *Hub) broadcastFeedback(f quiz.Feedback) {
	h.broadcast(FeedbackMessage{Type: "feedback", Kind: f})
}

func (h *Hub) register(c *Client) {
	h.Post(func() {
		h.touch()
		h.clients[c] = true

		if h.abandon != nil {
			h.abandon()
			h.abandon = nil
		}

		h.log.Debug().Str("player", c.playerID).Int("players", len(h.clients)).Msg("Player connected")

		switch {
		case h.loadErr != nil:
			h.send(c, SimpleMessage{Type: "error", Message: catalog.ErrCollectionUnavailable.Error()})
		case h.game != nil:
			h.send(c, h.collectionMessage())
			h.audio.replay(c)
			h.broadcastState()
		}
	})
}

func (h *Hub) unregister(c *Client) {
	h.Post(func() {
		h.touch()

		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}

		h.log.Debug().Str("player", c.playerID).Int("players", len(h.clients)).Msg("Player disconnected")

		if len(h.clients) > 0 {
			h.broadcastState()
			return
		}
		if h.abandon == nil && h.game != nil {
			h.abandon = h.AfterFunc(h.cfg.playerTimeout, h.abandoned)
		}
	})
}

// abandoned forfeits a running game nobody is connected to.
func (h *Hub) abandoned() {
	h.abandon = nil

	if len(h.clients) > 0 || h.game == nil {
		return
	}
	if h.game.GiveUp() {
		h.log.Info().Msg("Forfeited abandoned game")
	}
}

func (h *Hub) handle(c *Client, msg ClientMessage) {
	h.touch()

	if !h.clients[c] {
		return
	}

	if h.game == nil {
		text := "The collection is still loading."
		if h.loadErr != nil {
			text = catalog.ErrCollectionUnavailable.Error()
		}
		h.send(c, SimpleMessage{Type: "error", Message: text})

		return
	}

	switch msg.Type {
	case "start":
		opts := quiz.Options{
			Rounds:  msg.Rounds,
			MinYear: msg.MinYear,
			MaxYear: msg.MaxYear,
		}
		if opts.Rounds == 0 {
			opts.Rounds = h.game.Eligible(opts)
		}

		if err := h.game.Start(opts); err != nil {
			h.send(c, SimpleMessage{Type: "error", Message: startError(err)})

			return
		}

		h.log.Info().Str("player", c.playerID).Int("rounds", opts.Rounds).Msg("Game started")
	case "guess":
		result := h.game.SubmitGuess(msg.Text)
		if result.Evaluated {
			h.send(c, GuessResultMessage{Type: "guess_result", GuessResult: result})
		}
	case "lifeline":
		kind, ok := quiz.ParseLifelineKind(msg.Kind)
		if !ok || !h.game.UseLifeline(kind) {
			h.send(c, SimpleMessage{Type: "error", Message: "That lifeline is not available right now."})
		}
	case "next":
		h.game.NextRound()
	case "give_up":
		if h.game.GiveUp() {
			h.log.Info().Str("player", c.playerID).Msg("Game given up")
		}
	case "replay":
		h.game.Replay()
	case "ready":
		h.game.AudioReady(msg.Token)
	default:
		// ignore unknown types
	}
}

func startError(err error) string {
	switch {
	case errors.Is(err, quiz.ErrGameInProgress):
		return "A game is already in progress."
	case errors.Is(err, quiz.ErrNoSongs):
		return "No songs match the selected years."
	case errors.Is(err, quiz.ErrInvalidRounds):
		return "Please choose a valid number of rounds."
	}
	return "Could not start the game."
}

// stop disconnects all clients and ends the loop (used by reaper).
func (h *Hub) stop() {
	h.Post(func() {
		for c := range h.clients {
			close(c.send)
			_ = c.conn.Close()
			delete(h.clients, c)
		}
		if h.abandon != nil {
			h.abandon()
		}
		if h.game != nil {
			h.game.Close()
		}

		h.mu.Lock()
		h.stopped = true
		h.queue = nil
		h.mu.Unlock()

		h.halted = true

		h.log.Info().Dur("age", time.Since(h.createdAt).Round(time.Second)).Msg("Closed game")
	})
}

// hubAudio fans playback commands out to every browser in the game and
// remembers the current track for players who join mid-round.
type hubAudio struct {
	h    *Hub
	load *AudioMessage
	play *AudioMessage
}

func (a *hubAudio) Load(ref string, token uint64) {
	msg := AudioMessage{
		Type:  "audio",
		Op:    "load",
		Ref:   a.h.loader.Source().URL(ref),
		Token: token,
	}
	a.load = &msg
	a.play = nil

	a.h.broadcast(msg)
}

func (a *hubAudio) Play(start, end float64) {
	if a.load == nil {
		return
	}

	msg := AudioMessage{
		Type:  "audio",
		Op:    "play",
		Start: start,
		End:   end,
		Token: a.load.Token,
		At:    time.Now().UnixMilli(),
	}
	a.play = &msg

	a.h.broadcast(msg)
}

func (a *hubAudio) Stop() {
	a.play = nil
	if a.load == nil {
		return
	}

	a.h.broadcast(AudioMessage{Type: "audio", Op: "stop", Token: a.load.Token})
}

func (a *hubAudio) replay(c *Client) {
	if a.load != nil {
		a.h.send(c, *a.load)
	}
	if a.play != nil {
		a.h.send(c, *a.play)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const playerCookieName = "songquiz_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each /quiz/$gameid
// is its own isolated session.
type GameManager struct {
	cfg    *Config
	loader *catalog.Loader
	prober *media.Prober

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	quit        chan struct{}
	closeOnce   sync.Once
}

func newGameManager(cfg *Config, loader *catalog.Loader, prober *media.Prober) *GameManager {
	gm := &GameManager{
		cfg:         cfg,
		loader:      loader,
		prober:      prober,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
		quit:        make(chan struct{}),
	}

	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}

	return gm
}

// getHub returns the hub for gameID, creating it for collectionID when the
// game does not exist yet.
func (gm *GameManager) getHub(gameID, collectionID, modeName string) (*Hub, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub, true
	}
	if collectionID == "" {
		return nil, false
	}

	hub := newHub(gm.cfg, gameID, collectionID, gm.cfg.mode(modeName), gm.loader, gm.prober)
	gm.hubs[gameID] = hub
	go hub.run()

	hub.log.Info().Msg("Created game")

	return hub, true
}

// newGameID generates a crypto-random base32 game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	for {
		id := rand.Text()[:8]

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()
			reaped++
		}
	}

	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := gm.reap(time.Now().Add(-gm.idleTimeout)); n > 0 {
				gm.cfg.log.Debug().Int("games", n).Msg("Reaped idle games")
			}
		case <-gm.quit:
			return
		}
	}
}

func (gm *GameManager) closeAll() {
	gm.closeOnce.Do(func() {
		close(gm.quit)
	})

	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.stop()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		q := r.URL.Query()
		hub, ok := gm.getHub(gameID, q.Get("collection"), q.Get("mode"))
		if !ok {
			http.Error(w, "unknown game", http.StatusNotFound)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.log.Debug().Err(err).Str("ip", realIP(r)).Msg("Websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		hub.register(client)

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.Post(func() {
			h.handle(c, msg)
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
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

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	u := url.URL{
		Scheme: scheme,
		Host:   r.Host,
		Path:   strings.TrimSuffix(r.URL.Path, "/qr"),
	}

	const qrSize = 320 // mobile-friendly size

	png, err := qrcode.Encode(u.String(), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		data, err := assets.ReadFile("assets/quiz/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)
		_ = getOrSetPlayerID(w, r)

		written, _ := w.Write(data)

		served(cfg, "game", written, realIP(r), startTime)
	}
}

// redirectNewGame handles GET /quiz by generating a new random game ID
// (with server-side collision detection) and redirecting to /quiz/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()
		if q.Get("collection") == "" {
			http.Redirect(w, r, cfg.prefix+"/", http.StatusSeeOther)
			return
		}

		gameID := gm.newGameID()

		keep := url.Values{}
		keep.Set("collection", q.Get("collection"))
		if mode := q.Get("mode"); mode != "" {
			keep.Set("mode", mode)
		}

		cfg.log.Debug().Str("game", gameID).Str("collection", q.Get("collection")).Msg("Redirecting to new game")

		http.Redirect(w, r, cfg.prefix+path+"/"+gameID+"?"+keep.Encode(), http.StatusTemporaryRedirect)
	}
}

// registerQuiz sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerQuiz(cfg *Config, path string, mux *httprouter.Router, loader *catalog.Loader, prober *media.Prober) *GameManager {
	gm := newGameManager(cfg, loader, prober)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return gm
}
