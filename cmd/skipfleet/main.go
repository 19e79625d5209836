package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"skipfleet/internal/client"
	"skipfleet/internal/controller"
	"skipfleet/internal/crypto"
	"skipfleet/internal/lounge"
	"skipfleet/internal/models"
	"skipfleet/internal/opsserver"
	"skipfleet/internal/preferences"
	"skipfleet/internal/reconciler"
	"skipfleet/internal/segments"
	"skipfleet/internal/store"
	"skipfleet/internal/supervisor"
)

var Version = "dev"

func main() {
	dataDir := envOr("DATA_DIR", "./data")
	dbPath := envOr("DB_PATH", filepath.Join(dataDir, "skipfleet.db"))
	migrationsDir := envOr("MIGRATIONS_DIR", "./migrations")
	listenAddr := envOr("OPS_LISTEN_ADDR", ":7936")
	httpTracing := os.Getenv("HTTP_TRACING") == "true"
	debug := os.Getenv("DEBUG") == "true"

	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("debug logging enabled")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}

	var storeOpts []store.Option
	if encKey := os.Getenv("TOKEN_ENCRYPTION_KEY"); encKey != "" {
		enc, err := crypto.NewEncryptor(encKey)
		if err != nil {
			log.Fatalf("invalid TOKEN_ENCRYPTION_KEY: %v", err)
		}
		storeOpts = append(storeOpts, store.WithEncryptor(enc))
		log.Println("API key encryption enabled")
	} else {
		log.Println("TOKEN_ENCRYPTION_KEY not set — segment-database API key stored in plaintext")
	}

	st, err := store.New(dbPath, storeOpts...)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(migrationsDir); err != nil {
		log.Fatalf("running migrations: %v", err)
	}
	if err := st.Validate(); err != nil {
		log.Printf("configuration validation: %v", err)
	}

	global, err := st.GetGlobalSettings()
	if err != nil {
		log.Fatalf("loading global settings: %v", err)
	}
	if debug {
		log.Printf("debug: global settings loaded: use_proxy=%v skip_ads=%v mute_ads=%v skip_count_tracking=%v auto_play=%v minimum_skip_length=%d",
			global.UseProxy, global.SkipAds, global.MuteAds, global.SkipCountTracking, global.AutoPlay, global.MinimumSkipLength)
	}

	clientMgr := client.New(global.UseProxy, httpTracing)
	defer clientMgr.Close()

	segClient := segments.New(clientMgr.Client())

	factory := supervisorFactory(st, clientMgr, segClient)

	rec := reconciler.New(st, factory)

	ops := opsserver.New(st, rec)
	opsHTTP := &http.Server{
		Addr:              listenAddr,
		Handler:           ops,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec.Start(ctx)

	go func() {
		log.Printf("skipfleet %s ops surface listening on %s", Version, listenAddr)
		if err := opsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ops server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	rec.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsHTTP.Shutdown(shutdownCtx); err != nil {
		log.Printf("ops server shutdown: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// supervisorFactory closes over the shared store, outbound client, and
// segment provider to build a reconciler.Factory: one Lounge Session and one
// Playback Controller per device, preferences resolved fresh from the store
// at start time.
func supervisorFactory(st *store.Store, clientMgr *client.Manager, seg *segments.Client) reconciler.Factory {
	return func(snap models.DeviceSnapshot) (reconciler.Supervisor, error) {
		global, err := st.GetGlobalSettings()
		if err != nil {
			return nil, fmt.Errorf("loading global settings: %w", err)
		}
		if global.SkipCategories, err = st.ListSkipCategories(); err != nil {
			return nil, fmt.Errorf("loading skip categories: %w", err)
		}
		if global.ChannelWhitelist, err = st.ListChannelWhitelist(); err != nil {
			return nil, fmt.Errorf("loading channel whitelist: %w", err)
		}
		prefs := preferences.Resolve(global, snap.Overrides, snap.OffsetSeconds())

		endpoint := loungeEndpoint(snap.ScreenID)
		tokenSource := &apiKeyTokenSource{store: st}
		sess := lounge.New(snap.ScreenID, endpoint, tokenSource)

		ctrl := controller.New(snap.ScreenID, sess, seg, st, prefs)

		sv := supervisor.New(snap, supervisor.SessionAdapter{Session: sess}, ctrl)
		return sv, nil
	}
}

// loungeEndpoint builds the device's lounge websocket URL. The wire
// protocol of device enrollment and pairing is outside this system's
// scope; this targets the real YouTube Lounge API endpoint the original
// tool binds to, keyed by screen_id.
func loungeEndpoint(screenID string) string {
	return "wss://www.youtube.com/api/lounge/bc/bind?screen_id=" + screenID
}

// apiKeyTokenSource treats the configured segment-database API key as the
// Lounge Session's bearer credential. The real pairing/token-exchange
// protocol is an external collaborator per this system's scope; refreshing
// here means re-reading the current value from the configuration store.
type apiKeyTokenSource struct {
	store *store.Store
}

func (a *apiKeyTokenSource) Token() (*oauth2.Token, error) {
	g, err := a.store.GetGlobalSettings()
	if err != nil {
		return nil, err
	}
	if g.APIKey == "" {
		return nil, fmt.Errorf("no api key configured")
	}
	return &oauth2.Token{AccessToken: g.APIKey}, nil
}
