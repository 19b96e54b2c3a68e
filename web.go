/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/songquiz/catalog"
	"github.com/Seednode/songquiz/media"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", cfg.csp)

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

// contentSecurityPolicy allows media and cover images from a remote catalog
// host alongside the server's own origin.
func contentSecurityPolicy(source catalog.Source) string {
	media := "'self'"
	if s, ok := source.(*catalog.HTTPSource); ok {
		origin := url.URL{Scheme: s.Base.Scheme, Host: s.Base.Host}
		media += " " + origin.String()
	}

	return strings.Join([]string{
		"default-src 'self'",
		"img-src " + media + " data:",
		"media-src " + media,
		"connect-src 'self'",
	}, "; ")
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("songquiz v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		served(cfg, "version", written, realIP(r), startTime)
	}
}

// newRouter registers every route against source.
func newRouter(cfg *Config, source catalog.Source, errs chan<- error) (*httprouter.Router, *GameManager) {
	loader := catalog.NewLoader(source, cfg.log.With().Str("component", "catalog").Logger(), 0)
	prober := media.NewProber(source, cfg.log.With().Str("component", "media").Logger(), 0)

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("Recovered from panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	registerHome(cfg, loader, mux, errs)

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.svg", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	registerAPI(cfg, loader, mux, errs)

	if dir, ok := source.(*catalog.DirSource); ok {
		mux.GET(cfg.prefix+cfg.mediaPrefix+"/*filepath", serveMedia(cfg, dir))
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	gm := registerQuiz(cfg, "/quiz", mux, loader, prober)

	return mux, gm
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	cfg.log = newLogger(cfg, os.Stderr)
	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	cfg.log.Info().Str("bind", cfg.bind).Int("port", cfg.port).Msg("Starting songquiz")

	client := &http.Client{Timeout: cfg.fetchTimeout}

	source, err := catalog.NewSource(cfg.collections, cfg.prefix+cfg.mediaPrefix, client)
	if err != nil {
		return err
	}
	cfg.csp = contentSecurityPolicy(source)

	errs := make(chan error, 64)

	go func() {
		for {
			select {
			case err := <-errs:
				cfg.log.Debug().Err(err).Msg("Failed to write response")
			case <-ctx.Done():
				return
			}
		}
	}()

	mux, gm := newRouter(cfg, source, errs)
	defer gm.closeAll()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	go func() {
		var err error
		cfg.log.Info().Msgf("Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.log.Error().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	cfg.log.Info().Msg("Stopped")

	return nil
}
