package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	v1handlers "github.com/deepgram/chorus/internal/api/v1/handlers"
	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/infrastructure/backend"
	"github.com/deepgram/chorus/internal/services"
	"github.com/deepgram/chorus/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	sessionFlag string
	addrFlag    string
	agentsFlag  string
	printFlag   bool
	createFlag  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Live transcript viewer for multi-agent chat sessions",
	Long: `chorus - live transcript viewer for multi-agent chat sessions.

Attaches to a session on the chat backend, merges the persisted transcript
with agent turns as they stream in, and serves the result over HTTP.

Environment:
  CHORUS_BACKEND_URL  Session REST API (default: http://localhost:8000/api)
  CHORUS_WS_URL       Stream base URL (default: derived from the backend URL)
  CHORUS_SESSION_ID   Session to attach to
  VIEWER_ADDR         Viewer API listen address (default: :8080)
  REDIS_URL           Snapshot store; memory is used when unset`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		_ = godotenv.Load()
		logger.SetOutput(os.Stderr, config.GetLogPretty())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach to a session and serve its live transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx)
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, err := loadAgents(agentsFlag)
		if err != nil {
			return err
		}

		svcs, err := services.InitializeServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svcs.Close()

		session, err := svcs.GetBackendService().CreateSession(cmd.Context(), agents)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), session.ID)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Post a message to a session through the REST API",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := sessionFlag
		if sessionID == "" {
			sessionID = config.GetSessionID()
		}
		return runSend(cmd.Context(), cmd.OutOrStdout(), backend.NewService(), sessionID, strings.Join(args, " "))
	},
}

func init() {
	watchCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session id (default: $CHORUS_SESSION_ID)")
	watchCmd.Flags().StringVar(&addrFlag, "addr", "", "Viewer API listen address (default: $VIEWER_ADDR)")
	watchCmd.Flags().BoolVarP(&printFlag, "print", "p", false, "Print finished messages to stdout")
	watchCmd.Flags().BoolVar(&createFlag, "create", false, "Create a new session when none is given")
	watchCmd.Flags().StringVar(&agentsFlag, "agents", "", "JSON file with agent definitions for --create")
	newCmd.Flags().StringVar(&agentsFlag, "agents", "", "JSON file with agent definitions")
	sendCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session id (default: $CHORUS_SESSION_ID)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(sendCmd)
}

func runWatch(ctx context.Context) error {
	svcs, err := services.InitializeServices(ctx)
	if err != nil {
		logger.Fatal(logger.APP, "Failed to initialize services: %v", err)
		return err
	}
	defer svcs.Close()

	sessionID := sessionFlag
	if sessionID == "" {
		sessionID = config.GetSessionID()
	}

	switch {
	case sessionID != "":
		if err := svcs.AttachSession(ctx, sessionID); err != nil {
			return err
		}
	case createFlag:
		agents, err := loadAgents(agentsFlag)
		if err != nil {
			return err
		}
		session, err := svcs.CreateSession(ctx, agents)
		if err != nil {
			return err
		}
		sessionID = session.ID
	default:
		return errors.New("no session given: pass --session, set CHORUS_SESSION_ID or use --create")
	}
	logger.Info(logger.APP, "Watching session %s", sessionID)

	if addrFlag != "" {
		defer config.SetViewerAddr(addrFlag)()
	}

	server := &http.Server{
		Addr:              config.GetViewerAddr(),
		Handler:           setupRouter(svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(logger.APP, "Viewer API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if printFlag {
		go printUpdates(ctx, svcs, newPrinter(os.Stdout))
	}

	select {
	case <-ctx.Done():
		logger.Info(logger.APP, "Shutting down")
	case err := <-errCh:
		logger.Fatal(logger.APP, "Viewer API failed: %v", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runSend(ctx context.Context, out io.Writer, backendService *backend.Service, sessionID, content string) error {
	if sessionID == "" {
		return errors.New("no session given: pass --session or set CHORUS_SESSION_ID")
	}

	msg, err := transcript.NewOutboundMessage(content, time.Now())
	if err != nil {
		return err
	}

	stored, err := backendService.PostMessage(ctx, sessionID, msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	fmt.Fprintf(out, "[%s] %s: %s\n", stored.Timestamp.Format("15:04:05"), stored.Role, stored.Content)
	return nil
}

func setupRouter(svcs *services.Services) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1handlers.RegisterV1Routes(r, svcs)
	return r
}

func loadAgents(path string) ([]transcript.AgentCreate, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}

	var agents []transcript.AgentCreate
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to parse agents file: %w", err)
	}
	if err := transcript.ValidateAgents(agents); err != nil {
		return nil, err
	}
	return agents, nil
}
