// trackgen draws random-sized samples of particle tracks from tracker
// simulation databases.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile string
	verbose    bool

	calls       int
	modeFlag    string
	outDir      string
	compression string

	inspectWorkers int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trackgen",
	Short: "trackgen - sample particle tracks from simulation databases",
	Long: `trackgen draws random-sized samples of qualifying particle tracks from an
ordered list of tracker simulation databases, rolling over to the next
database when one runs out.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Generate samples",
	Long: `Generate samples and optionally write them as Parquet files.

Examples:
  trackgen sample --config trackgen.yaml --calls 100
  trackgen sample --config trackgen.yaml --calls 10 --mode evaluation --out samples/`,
	RunE: runSample,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Count particles and qualifying particles per source",
	RunE:  runInspect,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log source rollovers")

	sampleCmd.Flags().IntVarP(&calls, "calls", "n", 1, "Number of samples to generate")
	sampleCmd.Flags().StringVarP(&modeFlag, "mode", "m", "training", "Sampling mode (training, evaluation)")
	sampleCmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory for Parquet output (overrides output.dir)")
	sampleCmd.Flags().StringVar(&compression, "compression", "", "Parquet compression (none, snappy, gzip, zstd)")

	inspectCmd.Flags().IntVar(&inspectWorkers, "workers", 4, "Sources scanned in parallel")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(inspectCmd)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "trackgen: ", log.LstdFlags)
}
