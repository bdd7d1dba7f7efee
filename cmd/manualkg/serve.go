package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/graph"
	"github.com/WessleyAI/manualkg/engine/ingest"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/WessleyAI/manualkg/engine/qa"
	"github.com/WessleyAI/manualkg/pkg/fn"
	"github.com/WessleyAI/manualkg/pkg/mid"
	"github.com/spf13/cobra"
)

const maxBodyBytes = 8 << 20

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the QA HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	reg, err := a.schema()
	if err != nil {
		return err
	}
	gs, err := a.graph(ctx)
	if err != nil {
		return err
	}
	svc, sim, err := a.qaService(gs, reg)
	if err != nil {
		return err
	}
	go func() {
		if err := sim.Warm(ctx); err != nil {
			a.log.Warn("embedding cache warm-up failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      a.routes(svc, ingest.NewExtractPipeline(a.ingestDeps(reg, nil)), gs),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("api server starting", "port", a.cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

type asker interface {
	Ask(ctx context.Context, req qa.Request) (qa.Response, error)
}

type statser interface {
	Stats(ctx context.Context) (graph.Stats, error)
}

type tripletStage = fn.Stage[manual.Document, ingest.Extracted]

func (a *app) routes(svc asker, extract tripletStage, stats statser) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/ask", handleAsk(svc, a.cfg.Lang, a.log))
	mux.HandleFunc("POST /api/triplets", handleTriplets(extract, a.log))
	mux.HandleFunc("GET /api/stats", handleStats(stats, a.log))
	mux.Handle("GET /metrics", a.met.Handler())

	return mid.Chain(mux,
		mid.RequestID(),
		mid.Recover(a.log),
		mid.Logger(a.log),
		mid.CORS(a.cfg.CORSOrigin),
		mid.MaxBody(maxBodyBytes),
		mid.OTel("manualkg"),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeCode(w http.ResponseWriter, status int, code domain.ResponseCode, lang string) {
	writeJSON(w, status, qa.Response{Code: code, Message: code.Message(lang)})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusOf maps a response code to its HTTP status. Canned "not found"
// outcomes are regular answers.
func statusOf(code domain.ResponseCode) int {
	switch code {
	case domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func handleAsk(svc asker, lang string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req qa.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCode(w, http.StatusBadRequest, domain.CodeInvalidRequest, lang)
			return
		}
		if req.Lang == "" {
			req.Lang = lang
		}
		resp, err := svc.Ask(r.Context(), req)
		if err != nil {
			logger.Error("qa ask failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
		}
		writeJSON(w, statusOf(resp.Code), resp)
	}
}

// TripletsResponse is the JSON response for POST /api/triplets.
type TripletsResponse struct {
	PartNo   string           `json:"part_no"`
	Product  string           `json:"product"`
	Models   []string         `json:"models"`
	Sections []string         `json:"sections"`
	Rejected []string         `json:"rejected,omitempty"`
	Triplets []domain.Triplet `json:"triplets"`
}

func handleTriplets(extract tripletStage, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := manual.DecodeDocument(r.Body)
		if err != nil {
			writeCode(w, http.StatusBadRequest, domain.CodeInvalidRequest, "en")
			return
		}
		x, err := extract(r.Context(), doc).Unwrap()
		if err != nil {
			logger.Warn("triplet extraction failed", "part_no", doc.ID(), "err", err)
			writeCode(w, http.StatusUnprocessableEntity, domain.CodeInvalidRequest, "en")
			return
		}
		resp := TripletsResponse{
			PartNo:   x.PartNo,
			Product:  x.Product,
			Models:   x.Models,
			Sections: x.Sections,
			Triplets: x.Triplets,
		}
		for _, k := range []manual.Kind{manual.KindTroubleshooting, manual.KindOperation, manual.KindSpecification} {
			if _, ok := x.Rejected[k]; ok {
				resp.Rejected = append(resp.Rejected, string(k))
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStats(stats statser, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := stats.Stats(r.Context())
		if err != nil {
			logger.Error("graph stats failed", "err", err)
			writeCode(w, http.StatusInternalServerError, domain.CodeInternalError, "en")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
