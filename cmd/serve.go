package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/pkg/dedup"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/processor"
	"github.com/xhad/newsagent/pkg/scraper"
	"github.com/xhad/newsagent/pkg/store"
	"github.com/xhad/newsagent/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		noChat    bool
		linksOnly bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the HTTP API. Unless --links-only is given, /procesar_pdf/ goes on to
scrape the extracted links, transcribe the images and store the documents
in the vector store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := server.FromConfig(a.config.Server)
			if addr != "" {
				cfg.Addr = addr
			}

			var asker server.Asker
			if !noChat || !linksOnly {
				s, err := a.openSession(ctx, !noChat)
				if err != nil {
					logger.Warn("vector store unavailable, chatbot and ingest disabled: %v", err)
				} else {
					defer s.Close()
					if !noChat {
						asker = s.assistant
					}
					if !linksOnly {
						cfg.Ingest = a.serverIngest(ctx, s)
						if cfg.Ingest.Images != nil {
							defer cfg.Ingest.Images.Close()
						}
					}
				}
			}

			return server.New(cfg, asker).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "do not connect the chatbot endpoint to the vector store")
	cmd.Flags().BoolVar(&linksOnly, "links-only", false, "only extract and classify links when processing a PDF")
	return cmd
}

// serverIngest assembles the ingest pipeline of the API around an open
// session. Image transcription is left out when Gemini is not configured.
func (a *app) serverIngest(ctx context.Context, s *session) *server.Ingest {
	ing := &server.Ingest{
		Scraper:   scraper.FromConfig(a.config.Scraper),
		Chunking:  processor.FromChunking(a.config.Chunking),
		Embedder:  s.embedder,
		Store:     s.store,
		Dedup:     dedup.FromConfig(a.config.Dedup),
		BatchSize: a.config.Embedding.BatchSize,
	}

	images, err := llm.NewImageExtractor(ctx, llm.ImageConfigFrom(a.config.Images))
	if err != nil {
		logger.Warn("image transcription disabled: %v", err)
	} else {
		ing.Images = images
	}
	return ing
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the vector store's database and chunk count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vectorStore, err := store.FromConfig(cmd.Context(), a.config.Database)
			if err != nil {
				return fmt.Errorf("failed to initialize vector store: %w", err)
			}
			defer vectorStore.Close()

			info, err := vectorStore.Info(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal info: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
