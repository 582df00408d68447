// Command vrouterd is the VM supervisor entrypoint: it loads host
// configuration, sweeps the filesystem for a disk image and optional
// license, selects an Integrated or distributed (ControlPlane +
// LineCard) topology, and runs the supervision loop until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vrnetlab/vrctl/internal/config"
	"github.com/vrnetlab/vrctl/internal/logging"
	"github.com/vrnetlab/vrctl/internal/supervisor"
	"github.com/vrnetlab/vrctl/internal/supervisor/healthlog"
	"github.com/vrnetlab/vrctl/internal/supervisor/statusapi"
	"github.com/vrnetlab/vrctl/internal/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func bootHistoryPath(cfg config.SupervisorConfig) string {
	return filepath.Join(cfg.RuntimeDir, "vrouterd-boot-history.db")
}

func newRootCmd() *cobra.Command {
	var (
		trace      bool
		username   string
		password   string
		numNICs    int
		newChassis bool
	)

	cmd := &cobra.Command{
		Use:   "vrouterd",
		Short: "Supervise a virtualized router appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), trace, username, password, numNICs, newChassis)
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false, "enable verbose (debug-level) logging")
	cmd.Flags().StringVar(&username, "username", "admin", "initial appliance username")
	cmd.Flags().StringVar(&password, "password", "admin", "initial appliance password")
	cmd.Flags().IntVar(&numNICs, "num-nics", 1, "number of traffic NICs to provision")
	cmd.Flags().BoolVar(&newChassis, "newchassis", false, "declare the newer chassis SMBIOS variant")

	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// newHistoryCmd inspects the supplemental boot-history log recorded by
// internal/supervisor/healthlog, printing every recorded state transition
// for a named VM (e.g. "integrated", "control-plane", "line-card-1").
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <vm-name>",
		Short: "Print the recorded boot-history events for a supervised VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), args[0])
		},
	}
}

func runHistory(ctx context.Context, vmName string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log, err := healthlog.Open(ctx, bootHistoryPath(cfg))
	if err != nil {
		return fmt.Errorf("vrouterd: open boot-history log: %w", err)
	}
	defer log.Close()

	events, err := log.History(ctx, vmName)
	if err != nil {
		return fmt.Errorf("vrouterd: read boot-history log: %w", err)
	}
	if len(events) == 0 {
		fmt.Printf("no recorded events for %s\n", vmName)
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %-10s %s\n", e.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), e.State, e.Detail)
	}
	return nil
}

func run(parent context.Context, trace bool, username, password string, numNICs int, newChassis bool) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("vrouterd")
	if trace {
		logger = logging.NewVerbose("vrouterd")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		return err
	}

	launcher := vm.NewQEMULauncher(cfg.HypervisorBinary)

	sup := supervisor.New(cfg, supervisor.Params{
		Username:   username,
		Password:   password,
		NumNICs:    numNICs,
		NewChassis: newChassis,
	}, logger)

	diskImage := filepath.Join(cfg.RuntimeDir, "sros.qcow2")
	if err := sup.Init(ctx, launcher, diskImage); err != nil {
		if errors.Is(err, supervisor.ErrLicenseRequired) {
			logger.Error("configuration prerequisite failed", "error", err)
			return err
		}
		logger.Error("init supervisor", "error", err)
		return err
	}

	if log, err := healthlog.Open(ctx, bootHistoryPath(cfg)); err != nil {
		logger.Warn("boot-history log unavailable", "error", err)
	} else {
		sup.SetRecorder(log)
		defer log.Close()
	}

	statusSrv := &http.Server{Addr: ":8888", Handler: statusapi.New(logger, sup)}
	go func() {
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("status api exited", "error", err)
		}
	}()
	defer statusSrv.Close()

	if err := sup.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor exit", "error", err)
		return err
	}
	return nil
}
