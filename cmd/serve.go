package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/city-synergy/internal/cache"
	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/pipeline"
)

// maxNormalizeInputs caps one /v1/normalize request.
const maxNormalizeInputs = 1000

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve city normalization and stage results over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		resolver, err := cityname.NewDefault()
		if err != nil {
			return err
		}

		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(cfg, cache.NewResolver(c, resolver, cfg.Redis.KeyPrefix)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// initCache connects to Redis when redis.url is set and falls back to an
// in-process cache otherwise.
func initCache(ctx context.Context) (cache.Cache, error) {
	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	if cfg.Redis.URL == "" {
		return cache.NewMemory(ttl), nil
	}
	return cache.NewRedis(ctx, cfg.Redis.URL, ttl)
}

type normalizeRequest struct {
	Inputs []string `json:"inputs"`
	Trace  bool     `json:"trace"`
}

type normalizeResult struct {
	cityname.Resolution
	Cached bool `json:"cached"`
}

// buildRouter wires the HTTP API.
func buildRouter(c *config.Config, resolver *cache.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: c.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/normalize", func(w http.ResponseWriter, req *http.Request) {
		var body normalizeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Inputs) == 0 {
			writeError(w, http.StatusBadRequest, "inputs is required")
			return
		}
		if len(body.Inputs) > maxNormalizeInputs {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d inputs per request", maxNormalizeInputs))
			return
		}

		results := make([]normalizeResult, len(body.Inputs))
		for i, in := range body.Inputs {
			res, hit := resolver.Resolve(req.Context(), in)
			if !body.Trace {
				res.Steps, res.Scripts = nil, nil
			}
			results[i] = normalizeResult{Resolution: res, Cached: hit}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	})

	r.Get("/v1/stages/{stage}", func(w http.ResponseWriter, req *http.Request) {
		stage := chi.URLParam(req, "stage")
		path, ok := pipeline.StageFile(c, stage)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stage %q", stage))
			return
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stage %s has not been run", stage))
			return
		}
		if err != nil {
			zap.L().Error("read stage file", zap.String("path", path), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read stage output")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
