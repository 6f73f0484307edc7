package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/pkg/dedup"
	"github.com/xhad/newsagent/pkg/ingest"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/processor"
	"github.com/xhad/newsagent/pkg/store"
)

// newProcessor builds the chunker for one documents file, dating its
// chunks from the file name unless the config pins a date.
func (a *app) newProcessor(path string) *processor.Processor {
	p := processor.NewWithConfig(processor.FromChunking(a.config.Chunking))
	if a.config.Chunking.DefaultDate == "" {
		if date, ok := ingest.DateFromFilename(path); ok {
			p.SetDefaultDate(date)
		}
	}
	return p
}

func newChunkCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "chunk <rag_clean.json>",
		Short: "Split a documents file into chunks without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ingest.LoadDocuments(args[0])
			if err != nil {
				return err
			}

			chunks, stats := a.newProcessor(args[0]).Process(loaded.Documents)
			logger.Info("%d documents, %d skipped, %d invalid, %d chunks",
				stats.Processed, stats.Skipped, loaded.Invalid, stats.Chunks)

			if out != "" {
				return writeJSONFile(out, chunks)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(chunks)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write the chunks to (default stdout)")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var noDedup bool

	cmd := &cobra.Command{
		Use:   "ingest <rag_clean.json>...",
		Short: "Chunk, embed and store documents files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			embedder, err := llm.NewProvider(ctx, a.config.Embedding)
			if err != nil {
				return fmt.Errorf("failed to initialize embedder: %w", err)
			}
			defer embedder.Close()

			vectorStore, err := store.FromConfig(ctx, a.config.Database)
			if err != nil {
				return fmt.Errorf("failed to initialize vector store: %w", err)
			}
			defer vectorStore.Close()

			var dd *dedup.Deduplicator
			if !noDedup {
				dd = dedup.FromConfig(a.config.Dedup)
			}

			for _, path := range args {
				loaded, err := ingest.LoadDocuments(path)
				if err != nil {
					return err
				}
				color.Blue("\nIngesting %s (%d documents, %d invalid)", path, len(loaded.Documents), loaded.Invalid)

				bar := getProgressBar(-1, " Storing chunks")
				pipeline := &ingest.Pipeline{
					Chunker:   a.newProcessor(path),
					Embedder:  embedder,
					Store:     vectorStore,
					Dedup:     dd,
					BatchSize: a.config.Embedding.BatchSize,
					OnProgress: func(done, total int) {
						bar.ChangeMax(total)
						bar.Set(done)
					},
				}

				sum, err := pipeline.Run(ctx, loaded.Documents)
				bar.Finish()
				if err != nil {
					return fmt.Errorf("failed to ingest %s: %w", path, err)
				}

				color.Green("\n✓ Stored %d of %d chunks in %s", sum.ChunksStored, sum.Chunks, sum.Duration.Round(time.Millisecond))
				cmd.Printf("  duplicate documents: %d\n  duplicate chunks: %d\n  skipped chunks: %d\n",
					sum.DocumentDuplicates, sum.ChunkDuplicates, sum.ChunksSkipped)
			}

			total, err := vectorStore.Count(ctx)
			if err != nil {
				return err
			}
			color.Cyan("%d chunks in %s", total, vectorStore.Config().TableName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDedup, "no-dedup", false, "store near-duplicate documents too")
	return cmd
}
