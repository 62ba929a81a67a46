// Live Memory: a shared working-memory MCP server for collaborative AI
// agents.
//
// Usage:
//
//	livememory serve     # Start the MCP server (SSE transport)
//	livememory version   # Print the version
//	livememory about     # Describe the tool catalogue
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/livememory/livememory/internal/config"
	lmserver "github.com/livememory/livememory/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logo = "\n" +
	" _     _              __  __                          \n" +
	"| |   (_)_   _____   |  \\/  | ___ _ __ ___   ___  _ __ _   _ \n" +
	"| |   | \\ \\ / / _ \\  | |\\/| |/ _ \\ '_ ` _ \\ / _ \\| '__| | | |\n" +
	"| |___| |\\ V /  __/  | |  | |  __/ | | | | | (_) | |  | |_| |\n" +
	"|_____|_| \\_/ \\___|  |_|  |_|\\___|_| |_| |_|\\___/|_|   \\__, |\n" +
	"                                                        |___/ \n"

var headerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("6")).
	Bold(true)

func printHeader() {
	fmt.Println(headerStyle.Render(logo))
}

var rootCmd = &cobra.Command{
	Use:   "livememory",
	Short: "Live Memory - shared working memory for collaborative AI agents",
	Long:  headerStyle.Render(logo) + "\nA shared working-memory MCP server for teams of AI agents.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over SSE",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("livememory v%s\n", lmserver.Version)
	},
}

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Describe the tool catalogue",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Live Memory v%s — 30 tools across system, space, live, bank, graph, backup and admin groups.\n", lmserver.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(aboutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps, err := lmserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sseServer := server.NewSSEServer(deps.MCP,
		server.WithSSEContextFunc(lmserver.SSEContextFunc(deps.Gate)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.Handle("/", sseServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	logger.Info().
		Str("addr", addr).
		Str("bucket", cfg.StoreBucket).
		Str("model", cfg.LLMModel).
		Msg("live memory server starting")
	color.Green("Live Memory listening on %s", addr)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		return fmt.Errorf("serving: %w", err)
	case <-sigCh:
		logger.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
