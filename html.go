/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"embed"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/songquiz/catalog"
	"github.com/Seednode/songquiz/games/quiz"
)

//go:embed assets/*
var assets embed.FS

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<link rel="stylesheet" href="/assets/quiz/app.css">`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body class=\"notice\"><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

// sortedModes lists modes from easiest to hardest.
func sortedModes(modes map[string]quiz.Mode) []quiz.Mode {
	out := make([]quiz.Mode, 0, len(modes))
	for _, m := range modes {
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b quiz.Mode) int {
		la, lb := int(a.Lives), int(b.Lives)
		if a.Lives.IsUnlimited() {
			la = 1 << 30
		}
		if b.Lives.IsUnlimited() {
			lb = 1 << 30
		}
		if la != lb {
			return lb - la
		}
		return strings.Compare(a.Name, b.Name)
	})

	return out
}

func homePage(cfg *Config, entries []catalog.Entry) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(getFavicon())
	b.WriteString(`<link rel="stylesheet" href="` + cfg.prefix + `/assets/quiz/app.css">`)
	b.WriteString(`<title>Song Quiz</title></head><body><main class="home">`)
	b.WriteString(`<h1>Song Quiz</h1>`)

	b.WriteString(`<form method="get" action="` + cfg.prefix + `/quiz">`)
	b.WriteString(`<label>Mode <select name="mode">`)
	for _, m := range sortedModes(cfg.modes) {
		selected := ""
		if m.Name == cfg.defaultMode {
			selected = " selected"
		}
		fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`,
			html.EscapeString(m.Name), selected, html.EscapeString(m.Title))
	}
	b.WriteString(`</select></label>`)

	if len(entries) == 0 {
		b.WriteString(`<label>Collection <input name="collection" required></label>`)
		b.WriteString(`<button type="submit">Play</button>`)
	} else {
		b.WriteString(`<ul class="collections">`)
		for _, e := range entries {
			b.WriteString(`<li><button type="submit" name="collection" value="` + html.EscapeString(e.ID) + `">`)
			b.WriteString(`<strong>` + html.EscapeString(e.Title) + `</strong>`)
			if e.Difficulty != "" {
				b.WriteString(` <span class="difficulty">` + html.EscapeString(e.Difficulty) + `</span>`)
			}
			if e.Description != "" {
				b.WriteString(`<p>` + html.EscapeString(e.Description) + `</p>`)
			}
			if e.SongCount > 0 {
				b.WriteString(`<small>` + strconv.Itoa(e.SongCount) + ` songs</small>`)
			}
			b.WriteString(`</button></li>`)
		}
		b.WriteString(`</ul>`)
	}

	b.WriteString(`</form></main></body></html>`)

	return b.String()
}

func serveHomePage(cfg *Config, loader *catalog.Loader, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), cfg.fetchTimeout)
		defer cancel()

		entries, err := loader.Index(ctx)
		if err != nil {
			cfg.log.Warn().Err(err).Msg("Could not list collections")
			entries = nil
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(homePage(cfg, entries)))
		if err != nil {
			errs <- err

			return
		}

		served(cfg, "home", written, realIP(r), startTime)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := "assets/" + strings.TrimPrefix(p.ByName("asset"), "/")

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		ext := strings.ToLower(filepath.Ext(fname))
		switch ext {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		case ".html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /quiz/
Disallow: /media/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

// quizURL links to a new game of collection in the given mode.
func quizURL(cfg *Config, collection, mode string) string {
	q := url.Values{}
	q.Set("collection", collection)
	if mode != "" {
		q.Set("mode", mode)
	}
	return cfg.prefix + "/quiz?" + q.Encode()
}

func registerHome(cfg *Config, loader *catalog.Loader, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/", serveHomePage(cfg, loader, errs))
	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))
}
