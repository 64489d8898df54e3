// Command server runs the studynotes HTTP API and MCP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kuitang/studynotes/internal/ai"
	"github.com/kuitang/studynotes/internal/api"
	"github.com/kuitang/studynotes/internal/audiocache"
	"github.com/kuitang/studynotes/internal/config"
	"github.com/kuitang/studynotes/internal/crypto"
	"github.com/kuitang/studynotes/internal/db"
	"github.com/kuitang/studynotes/internal/mcp"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/quiz"
	"github.com/kuitang/studynotes/internal/ratelimit"
	"github.com/kuitang/studynotes/internal/s3client"
	"github.com/kuitang/studynotes/internal/speech"
	"github.com/kuitang/studynotes/internal/statestore"
)

const (
	// audioKeyVersion selects the HKDF info for the audio sealing key.
	audioKeyVersion = 1
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		obs.Pkg("main").Error("server.exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	obs.Init()
	log := obs.Pkg("main")

	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}
	cfg.PrintStartupSummary(stderr)

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.DatabasePath, masterKey)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	blobs, stopBlobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopBlobs()

	cache := audiocache.New(
		audiocache.NewSQLiteEntries(database),
		blobs,
		audiocache.WithSealKey(crypto.DeriveKey(masterKey, crypto.PurposeAudio, audioKeyVersion)),
	)

	notesSvc := notes.NewService(database, notes.WithStorageLimit(cfg.StorageLimit))
	quizSvc := quiz.NewService(notesSvc, statestore.NewSQLite(database, nil), nil)
	notesSvc.OnDelete(cache.Delete)
	notesSvc.OnDelete(quizSvc.Forget)

	textAI := newTextService(cfg)
	synth, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	speechSvc := speech.NewService(synth, cache, speech.Voice(cfg.ElevenLabsVoiceID))

	limitKey, err := cfg.RateLimitKey()
	if err != nil {
		return err
	}
	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	handler := api.NewHandler(api.Config{
		Notes:       notesSvc,
		Quiz:        quizSvc,
		AI:          textAI,
		Speech:      speechSvc,
		Cache:       cache,
		CacheMaxAge: cfg.AudioCacheMaxAge,
		Limit:       ratelimit.Middleware(limiter, limitKey),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(handler, mcp.NewServer(notesSvc, quizSvc)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Speech synthesis can take a while for long notes.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server.listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cache.RunSweeper(gctx, cfg.AudioSweepInterval, cfg.AudioCacheMaxAge)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRouter mounts the API and MCP endpoint behind the request-correlation
// and access-log middleware.
func newRouter(handler *api.Handler, mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mountMCPRoute(mux, "/mcp", mcpHandler)
	return obs.RequestContext(obs.AccessLog("http")(mux))
}

// mountMCPRoute registers every Streamable HTTP method on path. The MCP
// server rejects the methods it does not serve itself.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config) (audiocache.BlobStore, func(), error) {
	if cfg.NoS3 {
		client, stop, err := s3client.NewInMemory(ctx, cfg.BucketName())
		if err != nil {
			return nil, nil, fmt.Errorf("start in-memory S3: %w", err)
		}
		return client, stop, nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create S3 client: %w", err)
	}
	return client, func() {}, nil
}

func newTextService(cfg *config.Config) ai.TextService {
	if cfg.NoAI {
		return ai.Mock{}
	}
	return ai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
}

func newSynthesizer(cfg *config.Config) (speech.Synthesizer, error) {
	if cfg.NoTTS {
		return &speech.Mock{}, nil
	}
	return speech.NewElevenLabs(speech.Config{
		APIKey:  cfg.ElevenLabsAPIKey,
		ModelID: cfg.ElevenLabsModelID,
	})
}
