/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Seednode/songquiz/catalog"
)

const testSongs = `{
	"aladdin": {
		"sources": [[true, "Aladdin"]],
		"title": "Friend Like Me",
		"year": 1992,
		"audioFile": "aladdin.wav"
	},
	"mulan": {
		"sources": [[true, "Mulan"]],
		"title": "Reflection",
		"year": 1998,
		"audioFile": "mulan.wav"
	}
}`

const testCollection = `{
	"title": "Disney Duo",
	"description": "Two songs, one answer each",
	"sourceName": "Movie",
	"gameStyle": 2,
	"songs": ["aladdin", "mulan"]
}`

const testIndex = `{"collections": [{"id": "duo", "title": "Disney Duo", "songs": ["aladdin", "mulan"]}]}`

var answers = map[string]string{
	"aladdin.wav": "aladdin",
	"mulan.wav":   "mulan",
}

// silentWAV builds a mono 16-bit PCM file of the given length.
func silentWAV(sampleRate, seconds int) []byte {
	dataSize := sampleRate * seconds * 2

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataSize))
	b.Write(make([]byte, dataSize))

	return b.Bytes()
}

type ServerSuite struct {
	suite.Suite

	cfg    *Config
	srv    *httptest.Server
	gm     *GameManager
	client *http.Client
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) write(root, name string, data []byte) {
	path := filepath.Join(root, filepath.FromSlash(name))
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, data, 0o644))
}

func (s *ServerSuite) SetupTest() {
	root := s.T().TempDir()
	s.write(root, "collections.json", []byte(testIndex))
	s.write(root, "collections/duo/data.json", []byte(testCollection))
	s.write(root, "audio/songs.json", []byte(testSongs))
	s.write(root, "audio/aladdin.wav", silentWAV(8000, 30))
	s.write(root, "audio/mulan.wav", silentWAV(8000, 30))

	s.cfg = &Config{
		collections:   root,
		defaultMode:   "default",
		fetchTimeout:  5 * time.Second,
		logFormat:     "json",
		mediaPrefix:   "/media",
		playerTimeout: time.Minute,
		port:          8080,
	}
	s.Require().NoError(s.cfg.validate())
	s.cfg.log = zerolog.Nop()

	source, err := catalog.NewSource(s.cfg.collections, s.cfg.mediaPrefix, http.DefaultClient)
	s.Require().NoError(err)
	s.cfg.csp = contentSecurityPolicy(source)

	errs := make(chan error, 64)

	var mux http.Handler
	mux, s.gm = newRouter(s.cfg, source, errs)
	s.srv = httptest.NewServer(mux)

	s.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *ServerSuite) TearDownTest() {
	s.gm.closeAll()
	s.srv.Close()
}

func (s *ServerSuite) get(path string, header ...string) (*http.Response, []byte) {
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	s.Require().NoError(err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	return resp, body
}

func (s *ServerSuite) TestHomeListsCollectionsAndModes() {
	resp, body := s.get("/")

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "Disney Duo")
	s.Contains(string(body), `value="duo"`)
	s.Contains(string(body), "Sudden Death")
	s.Contains(resp.Header.Get("Content-Security-Policy"), "media-src 'self'")
}

func (s *ServerSuite) TestStaticRoutes() {
	resp, body := s.get("/healthz")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Ok\n", string(body))

	resp, body = s.get("/version")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("songquiz v"+releaseVersion+"\n", string(body))

	resp, body = s.get("/robots.txt")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "Disallow: /quiz/")

	resp, _ = s.get("/assets/quiz/app.js")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, _ = s.get("/assets/quiz/missing.js")
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, body = s.get("/favicons/site.webmanifest")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "Song Quiz")

	resp, _ = s.get("/favicon.svg")
	s.Equal("image/svg+xml", resp.Header.Get("Content-Type"))
}

func (s *ServerSuite) TestModesAPI() {
	resp, body := s.get("/api/modes")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var out struct {
		Default string `json:"default"`
		Modes   []struct {
			Name  string `json:"name"`
			Lives any    `json:"lives"`
		} `json:"modes"`
	}
	s.Require().NoError(json.Unmarshal(body, &out))

	s.Equal("default", out.Default)
	s.Len(out.Modes, 4)
	s.Equal("suddendeath", out.Modes[len(out.Modes)-1].Name)
}

func (s *ServerSuite) TestCollectionsAPI() {
	resp, body := s.get("/api/collections")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), `"play":"/quiz?collection=duo"`)
	s.Contains(string(body), `"song_count":2`)

	resp, body = s.get("/api/collections/duo")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var c struct {
		Title     string `json:"title"`
		Style     string `json:"style"`
		SongCount int    `json:"song_count"`
		MinYear   int    `json:"min_year"`
		MaxYear   int    `json:"max_year"`
	}
	s.Require().NoError(json.Unmarshal(body, &c))
	s.Equal("Disney Duo", c.Title)
	s.Equal("source", c.Style)
	s.Equal(2, c.SongCount)
	s.Equal(1992, c.MinYear)
	s.Equal(1998, c.MaxYear)

	resp, body = s.get("/api/collections/nope")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Contains(string(body), "could not load this collection")
}

func (s *ServerSuite) TestMediaSupportsRanges() {
	resp, body := s.get("/media/audio/aladdin.wav", "Range", "bytes=0-3")

	s.Equal(http.StatusPartialContent, resp.StatusCode)
	s.Equal("RIFF", string(body))

	resp, _ = s.get("/media/audio/missing.wav")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *ServerSuite) TestNewGameRedirect() {
	resp, _ := s.get("/quiz?collection=duo&mode=intense")
	s.Require().Equal(http.StatusTemporaryRedirect, resp.StatusCode)

	loc := resp.Header.Get("Location")
	s.Regexp(`^/quiz/[A-Z2-7]{8}\?collection=duo&mode=intense$`, loc)

	resp, _ = s.get("/quiz")
	s.Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal("/", resp.Header.Get("Location"))
}

func (s *ServerSuite) TestGamePageSetsPlayerCookie() {
	resp, body := s.get("/quiz/ABCDEFGH")

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Contains(string(body), "app.js")

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			found = true
			s.Len(c.Value, 36)
		}
	}
	s.True(found)
}

func (s *ServerSuite) TestQRCode() {
	resp, body := s.get("/quiz/ABCDEFGH/qr")

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("image/png", resp.Header.Get("Content-Type"))
	s.True(bytes.HasPrefix(body, []byte("\x89PNG")))
}

func (s *ServerSuite) dial(path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + path

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// expect reads messages until one of type typ satisfies match.
func (s *ServerSuite) expect(conn *websocket.Conn, typ string, match func(map[string]any) bool) map[string]any {
	deadline := time.Now().Add(5 * time.Second)
	s.Require().NoError(conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err, "waiting for %s", typ)

		var msg map[string]any
		s.Require().NoError(json.Unmarshal(data, &msg))

		if msg["type"] == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func phase(p string) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["phase"] == p
	}
}

func (s *ServerSuite) send(conn *websocket.Conn, msg ClientMessage) {
	s.Require().NoError(conn.WriteJSON(msg))
}

// playRound answers the round that is loading and returns its audio ref.
// The round is awaiting the next one when it returns.
func (s *ServerSuite) playRound(conn *websocket.Conn) string {
	load := s.expect(conn, "audio", func(m map[string]any) bool {
		return m["op"] == "load"
	})

	ref, _ := load["ref"].(string)
	s.Require().True(strings.HasPrefix(ref, "/media/audio/"), ref)

	token := uint64(load["token"].(float64))
	s.send(conn, ClientMessage{Type: "ready", Token: token})

	s.expect(conn, "audio", func(m map[string]any) bool {
		return m["op"] == "play"
	})
	s.expect(conn, "state", phase("playing"))

	s.send(conn, ClientMessage{Type: "guess", Text: "definitely wrong"})
	s.expect(conn, "feedback", nil)
	miss := s.expect(conn, "guess_result", nil)
	s.Equal(true, miss["evaluated"])
	s.Nil(miss["points"])

	s.send(conn, ClientMessage{Type: "guess", Text: answers[strings.TrimPrefix(ref, "/media/audio/")]})
	result := s.expect(conn, "guess_result", nil)
	s.EqualValues(50, result["points"])

	return ref
}

func (s *ServerSuite) TestGameFlow() {
	conn := s.dial("/quiz/GAMEFLOW/ws?collection=duo&mode=default")

	collection := s.expect(conn, "collection", nil)
	s.Equal("Disney Duo", collection["collection"].(map[string]any)["title"])
	s.Equal("default", collection["mode"].(map[string]any)["name"])
	s.expect(conn, "state", phase("idle"))

	s.send(conn, ClientMessage{Type: "start", Rounds: 2})

	first := s.playRound(conn)

	s.send(conn, ClientMessage{Type: "next"})
	second := s.playRound(conn)
	s.NotEqual(first, second)

	s.send(conn, ClientMessage{Type: "next"})
	ended := s.expect(conn, "state", phase("ended"))

	summary := ended["summary"].(map[string]any)
	s.Equal("success", summary["outcome"])
	s.EqualValues(100, summary["score"])
	s.EqualValues(2, summary["sources_guessed"])
}

func (s *ServerSuite) TestStartValidation() {
	conn := s.dial("/quiz/BADSTART/ws?collection=duo")
	s.expect(conn, "state", phase("idle"))

	s.send(conn, ClientMessage{Type: "start", Rounds: 3})
	msg := s.expect(conn, "error", nil)
	s.Contains(msg["message"], "valid number of rounds")

	s.send(conn, ClientMessage{Type: "start", Rounds: 1, MinYear: 2000})
	msg = s.expect(conn, "error", nil)
	s.Contains(msg["message"], "No songs")

	s.send(conn, ClientMessage{Type: "lifeline", Kind: "teleport"})
	msg = s.expect(conn, "error", nil)
	s.Contains(msg["message"], "lifeline")
}

func (s *ServerSuite) TestGiveUpEndsGame() {
	conn := s.dial("/quiz/GIVEUPGG/ws?collection=duo&mode=intense")
	s.expect(conn, "state", phase("idle"))

	s.send(conn, ClientMessage{Type: "start"})
	s.expect(conn, "audio", func(m map[string]any) bool {
		return m["op"] == "load"
	})

	s.send(conn, ClientMessage{Type: "give_up"})
	ended := s.expect(conn, "state", phase("ended"))

	s.Equal("failure", ended["outcome"])
	s.Equal("intense", ended["mode"])
	s.EqualValues(2, ended["rounds_total"])
}

func (s *ServerSuite) TestSecondPlayerJoinsRunningGame() {
	first := s.dial("/quiz/SHAREDGM/ws?collection=duo")
	s.expect(first, "state", phase("idle"))

	s.send(first, ClientMessage{Type: "start", Rounds: 1})
	load := s.expect(first, "audio", func(m map[string]any) bool {
		return m["op"] == "load"
	})

	second := s.dial("/quiz/SHAREDGM/ws")
	s.expect(second, "collection", nil)
	replayed := s.expect(second, "audio", func(m map[string]any) bool {
		return m["op"] == "load"
	})
	s.Equal(load["ref"], replayed["ref"])

	state := s.expect(second, "state", phase("loading"))
	s.EqualValues(2, state["players"])
}

func (s *ServerSuite) TestUnavailableCollection() {
	conn := s.dial("/quiz/MISSINGC/ws?collection=nope")

	msg := s.expect(conn, "error", nil)
	s.Equal("could not load this collection", msg["message"])

	s.send(conn, ClientMessage{Type: "start", Rounds: 1})
	msg = s.expect(conn, "error", nil)
	s.Equal("could not load this collection", msg["message"])
}

func (s *ServerSuite) TestUnknownGameWithoutCollection() {
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/quiz/NOSUCHGM/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().ErrorIs(err, websocket.ErrBadHandshake)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *ServerSuite) TestReapIdleGames() {
	conn := s.dial("/quiz/IDLEGAME/ws?collection=duo")
	s.expect(conn, "state", phase("idle"))

	hub, ok := s.gm.getHub("IDLEGAME", "", "")
	s.Require().True(ok)

	s.Equal(0, s.gm.reap(time.Now().Add(-time.Hour)))
	s.Equal(1, s.gm.reap(time.Now().Add(time.Hour)))

	select {
	case <-hub.done:
	case <-time.After(5 * time.Second):
		s.Fail("hub did not stop")
	}

	_, ok = s.gm.getHub("IDLEGAME", "", "")
	s.False(ok)
}

func TestHubRunsPostedWorkInOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{fetchTimeout: time.Second, log: zerolog.Nop()}
	source := &catalog.DirSource{Root: t.TempDir()}
	loader := catalog.NewLoader(source, zerolog.Nop(), 0)

	h := newHub(cfg, "ORDERING", "absent", cfg.mode(""), loader, nil)
	go h.run()
	defer h.stop()

	got := make(chan int, 8)
	for i := range 5 {
		h.Post(func() {
			got <- i
		})
	}

	for want := range 5 {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "posted work did not run")
		}
	}

	stop := h.AfterFunc(time.Hour, func() {
		got <- -1
	})
	assert.True(t, stop())

	h.AfterFunc(time.Millisecond, func() {
		got <- 42
	})
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timer did not fire")
	}
}

func TestSortedModes(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, cfg.validate())

	names := []string{}
	for _, m := range sortedModes(cfg.modes) {
		names = append(names, m.Name)
	}

	assert.Equal(t, []string{"default", "trivial", "intense", "suddendeath"}, names)
}

func TestContentSecurityPolicy(t *testing.T) {
	t.Parallel()

	src, err := catalog.NewSource("https://songs.example.com/catalog", "/media", http.DefaultClient)
	require.NoError(t, err)

	csp := contentSecurityPolicy(src)
	assert.Contains(t, csp, "media-src 'self' https://songs.example.com")
	assert.Contains(t, csp, "img-src 'self' https://songs.example.com data:")
}
