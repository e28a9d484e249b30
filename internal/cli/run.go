package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/danbooru-harvester/pkg/client"
	"github.com/Sternrassler/danbooru-harvester/pkg/harvester"
	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
	"github.com/Sternrassler/danbooru-harvester/pkg/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the harvest",
	Long: `Harvest posts in id-range batches, streaming records to the output
file and committing a checkpoint after every written page. Interrupt at
any time; the next run resumes where this one stopped.`,
	Example: `  harvester run
  harvester run --output corpus.jsonl --upper-id 500000
  DANBOORU_LOGIN=me DANBOORU_API_KEY=... harvester run`,
	RunE: runHarvest,
}

func init() {
	runCmd.Flags().String("output", "posts.jsonl", "output JSONL file")
	runCmd.Flags().String("checkpoint", "checkpoint.json", "checkpoint file (file backend)")
	runCmd.Flags().Int64("batch-size", 1000, "id-range width per batch")
	runCmd.Flags().Int64("first-id", 1, "id a fresh harvest starts at")
	runCmd.Flags().Int64("upper-id", 0, "inclusive id bound, 0 for unbounded")
	runCmd.Flags().String("metrics-addr", "", "listen address for Prometheus metrics (empty disables)")

	rootCmd.AddCommand(runCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	// Bound here, not in init: run and stats share the "output" key and
	// the binding must follow the invoked command.
	viper.BindPFlag("output", cmd.Flags().Lookup("output"))
	viper.BindPFlag("checkpoint.path", cmd.Flags().Lookup("checkpoint"))
	viper.BindPFlag("batch_size", cmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("first_id", cmd.Flags().Lookup("first-id"))
	viper.BindPFlag("upper_id", cmd.Flags().Lookup("upper-id"))
	viper.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))

	logger, logCloser, err := logging.Setup(loggingConfig())
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	fetcher, err := client.New(clientConfig())
	if err != nil {
		return fmt.Errorf("client configuration: %w", err)
	}

	store, closeStore, err := newCheckpointStore(logger)
	if err != nil {
		return err
	}
	defer closeStore()

	out, err := sink.NewJSONLWriter(viper.GetString("output"), logger)
	if err != nil {
		return err
	}
	defer out.Close()

	hv, err := harvester.New(fetcher, store, out, harvestConfig())
	if err != nil {
		return fmt.Errorf("harvest configuration: %w", err)
	}

	if addr := viper.GetString("metrics_addr"); addr != "" {
		go serveMetrics(addr)
		logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Println(color.GreenString("Starting harvest, output: %s", viper.GetString("output")))

	if err := hv.Run(ctx); err != nil {
		return fmt.Errorf("harvest failed: %w", err)
	}

	if err := out.Close(); err != nil {
		return err
	}

	fmt.Println(color.GreenString("Harvest stopped cleanly, checkpoint saved"))
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("metrics endpoint: %v", err))
	}
}
