// Package main provides an interactive prompt for asking the clinical reference.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/clinical-rag/internal/config"
	"github.com/bull/clinical-rag/internal/engine"
)

var (
	showSources bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "clinical-ask [question]",
	Short: "Ask the clinical reference",
	Long: `Answers questions from the indexed clinical reference with page citations.

With a question argument, answers it and exits. Without one, reads questions
from stdin until "quit", "exit" or "q".

Environment variables:
  BUNDLE_DIR          Bundle directory (default: data/bundle)
  TOP_K               Chunks retrieved per question (default: 5)
  EMBEDDING_API_KEY   Embedding API key (falls back to OPENAI_API_KEY)
  GROQ_API_KEY        Groq API key (primary provider)
  OPENROUTER_API_KEY  OpenRouter API key (fallback provider)
  PROVIDERS_FILE      YAML file overriding the provider fallback list
  USE_QDRANT          Search the Qdrant mirror instead of the local index`,
	SilenceUsage: true,
	RunE:         runAsk,
}

func init() {
	rootCmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved passages before each answer")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log provider attempts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	eng, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) > 0 {
		return answer(ctx, cmd.OutOrStdout(), eng, strings.Join(args, " "))
	}
	return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), eng)
}

// isQuit reports whether line ends the session.
func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

func repl(ctx context.Context, in io.Reader, out io.Writer, eng *engine.Engine) error {
	s := eng.Status(ctx)
	fmt.Fprintf(out, "Clinical reference loaded: %d chunks (%s). Type quit to exit.\n", s.Chunks, s.Backend)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if isQuit(line) {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := answer(ctx, out, eng, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func answer(ctx context.Context, out io.Writer, eng *engine.Engine, question string) error {
	if showSources {
		hits, err := eng.Search(ctx, question, 0)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(out, "  [Page %d] (%.3f) %s\n", h.Page, h.Distance, preview(h.Text, 80))
		}
	}

	ans, err := eng.Ask(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n\n-- %s\n", ans.Text, ans.Provenance)
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
