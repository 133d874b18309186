package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/executor"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
	"github.com/brood-run/brood/internal/render"
)

var (
	runDry     bool
	runVerbose bool
	runDebug   bool
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Execute a configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry", false, "Do not actually run any commands")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print extra information as brood runs")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Run with extra diagnostic logging")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath := "brood.yaml"
	if len(args) == 1 {
		configPath = args[0]
	} else if env := os.Getenv("BROOD_CONFIG"); env != "" {
		configPath = env
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	verbose := runVerbose || runDebug
	if verbose {
		encoded, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("encode config for display: %w", err)
		}
		color.New(color.Bold).Println("Configuration")
		fmt.Println(string(encoded))
	}

	if runDry {
		return nil
	}

	if runDebug {
		cfg.Renderer.MinVerbosity = message.Debug.String()
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}

	exec, err := executor.New(cfg, func(messages *fanout.Fanout[message.Message]) (render.Renderer, error) {
		return render.New(messages, cfg.Renderer)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return exec.Run(ctx)
}
