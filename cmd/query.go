package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/store"
)

// searchOptions are the flags shared by query and chat.
type searchOptions struct {
	filter        types.QueryFilter
	mode          string
	vectorWeight  float64
	keywordWeight float64
}

func (o *searchOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.filter.Limit, "limit", "n", 5, "maximum number of chunks")
	cmd.Flags().StringVar(&o.filter.Source, "source", "", "only chunks from this source (html, image, social, ...)")
	cmd.Flags().StringVar(&o.filter.Date, "date", "", "only chunks of this bulletin date (DDMMYYYY)")
	cmd.Flags().StringVar(&o.filter.URL, "url", "", "only chunks of this page")
	cmd.Flags().Float64Var(&o.filter.MinSimilarity, "min-similarity", 0, "drop vector matches below this similarity")
	cmd.Flags().StringVar(&o.mode, "mode", "vector", "search mode: vector, keyword or hybrid")
	cmd.Flags().Float64Var(&o.vectorWeight, "vector-weight", 0.7, "hybrid weight of the vector rank")
	cmd.Flags().Float64Var(&o.keywordWeight, "keyword-weight", 0.3, "hybrid weight of the keyword rank")
}

// session holds the clients a search or chat needs.
type session struct {
	embedder  llm.Provider
	store     *store.VectorStore
	assistant *llm.Assistant
}

func (a *app) openSession(ctx context.Context, withChat bool) (*session, error) {
	embedder, err := llm.NewProvider(ctx, a.config.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	vectorStore, err := store.FromConfig(ctx, a.config.Database)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	s := &session{
		embedder:  embedder,
		store:     vectorStore,
		assistant: &llm.Assistant{Embedder: embedder, Store: vectorStore},
	}
	if withChat {
		chat, err := llm.FromConfig(a.config.LLM)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		s.assistant.Chat = chat
	}
	return s, nil
}

func (s *session) Close() {
	s.store.Close()
	s.embedder.Close()
}

func (s *session) search(ctx context.Context, question string, opts searchOptions) ([]models.SearchResult, error) {
	switch opts.mode {
	case "", "vector":
		return s.assistant.Search(ctx, question, opts.filter)
	case "keyword":
		return s.store.KeywordSearch(ctx, question, opts.filter)
	case "hybrid":
		vectors, err := s.embedder.CreateEmbedding(ctx, []string{question})
		if err != nil {
			return nil, fmt.Errorf("failed to embed question: %w", err)
		}
		weights := store.HybridWeights{Vector: opts.vectorWeight, Keyword: opts.keywordWeight}
		return s.store.HybridSearch(ctx, question, vectors[0], weights, opts.filter)
	}
	return nil, fmt.Errorf("unknown search mode %q", opts.mode)
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		opts   searchOptions
		ask    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Search the stored chunks, optionally answering from them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			s, err := a.openSession(ctx, ask)
			if err != nil {
				return err
			}
			defer s.Close()

			spinner := getSpinner(" Searching news...")
			results, err := s.search(ctx, question, opts)
			spinner.Finish()
			if err != nil {
				return err
			}

			if ask {
				return streamAnswer(ctx, cmd, s.assistant.Chat, question, results)
			}
			if asJSON {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			printResults(cmd, results)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&ask, "ask", false, "answer the question from the matching chunks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []models.SearchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.ChunkID
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, r.Score)
		cmd.Printf("      %s | %s | %s\n", r.Source, r.Date, r.URL)
		text := []rune(r.Text)
		if len(text) > 200 {
			text = append(text[:200], '…')
		}
		cmd.Printf("      %s\n\n", string(text))
	}
}

func streamAnswer(ctx context.Context, cmd *cobra.Command, chat *llm.ChatEngine, question string, results []models.SearchResult) error {
	stream, err := chat.ChatStream(ctx, question, results)
	if err != nil {
		return err
	}

	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	responseSpinner := getSpinner(" Thinking...")
	firstChunk := true

	for chunk := range stream {
		if strings.HasPrefix(chunk, "Error:") {
			responseSpinner.Finish()
			return fmt.Errorf("%s", strings.TrimSpace(strings.TrimPrefix(chunk, "Error:")))
		}
		if firstChunk {
			responseSpinner.Finish()
			firstChunk = false
			assistantPrompt("\nAssistant: ")
		}
		fmt.Fprint(cmd.OutOrStdout(), chunk)
	}
	if firstChunk {
		responseSpinner.Finish()
	}

	cmd.Println(llm.FormatSources(llm.Answer{Sources: llm.Sources(results)}))
	return nil
}

func newChatCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about the news interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			color.Cyan("\nChat with the news archive (type 'exit' to quit)")
			scanner := bufio.NewScanner(os.Stdin)
			userPrompt := color.New(color.FgGreen).PrintfFunc()

			for {
				userPrompt("\nYou: ")
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if strings.EqualFold(question, "exit") {
					break
				}

				querySpinner := getSpinner(" Searching news...")
				results, err := s.search(ctx, question, opts)
				querySpinner.Finish()
				if err != nil {
					color.Red("Error querying chunks: %v", err)
					continue
				}
				if err := streamAnswer(ctx, cmd, s.assistant.Chat, question, results); err != nil {
					color.Red("Error: %v", err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			return scanner.Err()
		},
	}

	opts.register(cmd)
	return cmd
}
