/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"

	"github.com/Seednode/songquiz/catalog"
	"github.com/Seednode/songquiz/games/quiz"
)

type collectionEntry struct {
	catalog.Entry
	Play string `json:"play"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return w.Write(data)
}

func serveModes(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		written, err := writeJSON(cfg, w, http.StatusOK, map[string]any{
			"default": cfg.defaultMode,
			"modes":   sortedModes(cfg.modes),
		})
		if err != nil {
			errs <- err

			return
		}

		served(cfg, "modes", written, realIP(r), startTime)
	}
}

func serveCollections(cfg *Config, loader *catalog.Loader, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), cfg.fetchTimeout)
		defer cancel()

		entries, err := loader.Index(ctx)
		if err != nil {
			cfg.log.Warn().Err(err).Msg("Could not list collections")

			_, _ = writeJSON(cfg, w, http.StatusBadGateway, map[string]string{"error": "could not list collections"})

			return
		}

		list := lo.Map(entries, func(e catalog.Entry, _ int) collectionEntry {
			return collectionEntry{Entry: e, Play: quizURL(cfg, e.ID, "")}
		})

		written, err := writeJSON(cfg, w, http.StatusOK, list)
		if err != nil {
			errs <- err

			return
		}

		served(cfg, "collections", written, realIP(r), startTime)
	}
}

func serveCollection(cfg *Config, loader *catalog.Loader, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), cfg.fetchTimeout)
		defer cancel()

		c, err := loader.Load(ctx, p.ByName("id"))
		if err != nil {
			cfg.log.Warn().Err(err).Str("collection", p.ByName("id")).Msg("Could not load collection")

			_, _ = writeJSON(cfg, w, http.StatusNotFound, map[string]string{"error": catalog.ErrCollectionUnavailable.Error()})

			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, struct {
			*catalog.Collection
			Modes []quiz.Mode `json:"modes"`
		}{c, sortedModes(cfg.modes)})
		if err != nil {
			errs <- err

			return
		}

		served(cfg, "collection", written, realIP(r), startTime)
	}
}

// serveMedia streams files of a local catalog, honouring range requests so
// players can seek.
func serveMedia(cfg *Config, dir *catalog.DirSource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		name := p.ByName("filepath")

		rc, err := dir.Open(r.Context(), name)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			http.NotFound(w, r)

			return
		case err != nil:
			http.Error(w, "invalid path", http.StatusBadRequest)

			return
		}
		defer rc.Close()

		f, ok := rc.(*os.File)
		if !ok {
			http.Error(w, "unreadable file", http.StatusInternalServerError)

			return
		}

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		http.ServeContent(w, r, path.Base(name), info.ModTime(), io.ReadSeeker(f))
	}
}

func registerAPI(cfg *Config, loader *catalog.Loader, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/api/modes", serveModes(cfg, errs))
	mux.GET(cfg.prefix+"/api/collections", serveCollections(cfg, loader, errs))
	mux.GET(cfg.prefix+"/api/collections/:id", serveCollection(cfg, loader, errs))
}
