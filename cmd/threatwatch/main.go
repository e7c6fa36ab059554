package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/threatwatch/internal/config"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// debugLogging is set by the --debug flag.
var debugLogging bool

// initLogging installs the process logger. cfg may be nil before the
// configuration is loaded; DEBUG from the environment then applies once it is.
func initLogging(cfg *config.Config) {
	logger.InitWithWriter(os.Stdout, debugLogging || (cfg != nil && cfg.Debug))
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "threatwatch",
		Short:        "Iran-US conflict news monitor",
		Long:         "Fetches RSS, scraped and Telegram sources, filters and classifies them with an LLM and writes the threat level and executive summary documents.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(nil)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(),
		newScheduleCommand(),
		newThreatCommand(),
		newSummaryCommand(),
		newGeocodeCommand(),
		newResetCommand(),
		newSourceCommand(),
	)
	return root
}

func startMonitoringServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Global.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting monitoring server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Monitoring server error", "error", err)
		}
	}()
	return srv
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	code := http.StatusOK
	if healthy, _ := stats["is_healthy"].(bool); !healthy {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":     status,
		"runs":       stats["runs"],
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}
