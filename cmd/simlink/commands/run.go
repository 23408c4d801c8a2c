package commands

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/simlink-go/simlink/pkg/simlink"
)

func GetRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization engine",
		Long: `Runs the synchronization engine until interrupted.
With --metrics, engine counters are served on the given address in Prometheus
format at /metrics.`,
		RunE: runRun,
	}

	cmd.Flags().StringP("metrics", "m", "", "Address to serve Prometheus metrics on, e.g. :9090")
	cmd.Flags().BoolP("verbose", "v", false, "Log at debug level")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	metricsAddr, err := cmd.Flags().GetString("metrics")
	if err != nil {
		return err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}

	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	logger := newLogger(verbose)

	var registerer prometheus.Registerer
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		registerer = reg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	engine := simlink.New(cfg, simlink.Options{
		Logger:  logger,
		Metrics: registerer,
	})

	if err := engine.Start(); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
	case <-cmd.Context().Done():
	}

	return engine.Stop()
}
