package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/manualkg/engine/domain"
	"github.com/WessleyAI/manualkg/engine/ingest"
	"github.com/WessleyAI/manualkg/engine/manual"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	var dryRun, publish, force bool
	cmd := &cobra.Command{
		Use:   "ingest FILE|DIR...",
		Short: "Extract triplets from parsed manuals and store them in the graph",
		Long: "Each FILE is one JSON document {part_number, troubleshooting, operation, specification}.\n" +
			"Directories are searched for *.json files.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun && publish {
				return fmt.Errorf("--dry-run and --publish are exclusive")
			}
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch {
			case dryRun:
				return a.dryRun(ctx, files, cmd.OutOrStdout())
			case publish:
				return a.publish(ctx, files, force)
			default:
				return a.ingest(ctx, files, force, cmd.OutOrStdout())
			}
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print triplets as JSON lines instead of storing them")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish documents to NATS for the consumer")
	cmd.Flags().BoolVar(&force, "force", false, "replace manuals that were already ingested")
	return cmd
}

// collectFiles expands directories into their *.json files, sorted.
func collectFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

func readDocument(path string) (manual.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return manual.Document{}, err
	}
	defer f.Close()
	doc, err := manual.DecodeDocument(f)
	if err != nil {
		return manual.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// writeTriplets prints one JSON object per line.
func writeTriplets(w io.Writer, ts []domain.Triplet) error {
	enc := json.NewEncoder(w)
	for _, t := range ts {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) dryRun(ctx context.Context, files []string, w io.Writer) error {
	reg, err := a.schema()
	if err != nil {
		return err
	}
	pipeline := ingest.NewExtractPipeline(a.ingestDeps(reg, nil))
	for _, path := range files {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		x, err := pipeline(ctx, doc).Unwrap()
		if err != nil {
			a.log.Error("extract failed", "file", path, "error", err)
			continue
		}
		if err := writeTriplets(w, x.Triplets); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) ingest(ctx context.Context, files []string, force bool, w io.Writer) error {
	reg, err := a.schema()
	if err != nil {
		return err
	}
	gs, err := a.graph(ctx)
	if err != nil {
		return err
	}
	pipeline := ingest.NewPipeline(a.ingestDeps(reg, gs))
	enc := json.NewEncoder(w)
	failed := 0
	for _, path := range files {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		doc.Force = doc.Force || force
		out, err := pipeline(ctx, doc).Unwrap()
		if err != nil {
			failed++
			a.log.Error("ingest failed", "file", path, "part_no", doc.ID(), "error", err)
			continue
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d manuals failed", failed, len(files))
	}
	return nil
}

func (a *app) publish(ctx context.Context, files []string, force bool) error {
	nc, err := nats.Connect(a.cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	for _, path := range files {
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		doc.Force = doc.Force || force
		if err := ingest.Publish(ctx, nc, a.cfg.IngestSubject, doc); err != nil {
			return err
		}
		a.log.Info("published", "file", path, "part_no", doc.ID(), "subject", a.cfg.IngestSubject)
	}
	return nc.Flush()
}

func newConsumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume manuals from NATS and ingest them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, err := a.schema()
			if err != nil {
				return err
			}
			gs, err := a.graph(ctx)
			if err != nil {
				return err
			}
			nc, err := nats.Connect(a.cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("nats connect: %w", err)
			}
			defer nc.Close()

			sub, err := ingest.StartConsumer(nc, a.cfg.IngestSubject, a.ingestDeps(reg, gs))
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			msrv := a.met.ServeAsync(a.cfg.MetricsPort)
			a.log.Info("consumer started", "subject", a.cfg.IngestSubject, "dlq", ingest.DLQSubject(a.cfg.IngestSubject))

			<-ctx.Done()
			a.log.Info("shutdown signal received")
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = msrv.Shutdown(shutCtx)
			return sub.Drain()
		},
	}
}
