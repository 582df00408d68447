// Command xconnect runs the cross-connect packet plane: either a set of
// point-to-point TCP bridges between remote traffic-NIC sockets, or a
// single TCP<->TAP bridge. The two modes are mutually exclusive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vrnetlab/vrctl/internal/logging"
	"github.com/vrnetlab/vrctl/internal/xconnect/tcp2tap"
	"github.com/vrnetlab/vrctl/internal/xconnect/tcpbridge"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug     bool
		p2p       []string
		tapListen string
		tapIf     string
	)

	cmd := &cobra.Command{
		Use:   "xconnect",
		Short: "Cross-connect the packet plane between virtual router NICs",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(p2p) > 0 && tapListen != "" {
				return fmt.Errorf("xconnect: --p2p and --tap-listen are mutually exclusive")
			}
			if len(p2p) == 0 && tapListen == "" {
				return fmt.Errorf("xconnect: one of --p2p or --tap-listen is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), debug, p2p, tapListen, tapIf)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose logging")
	cmd.Flags().StringSliceVar(&p2p, "p2p", nil, "point-to-point link, host1/if1--host2/if2 (repeatable)")
	cmd.Flags().StringVar(&tapListen, "tap-listen", "", "listen for a single TCP tunnel and bridge it to a TAP device; value is the interface suffix (port 10000+N)")
	cmd.Flags().StringVar(&tapIf, "tap-if", "tap0", "name of the TAP interface to use with --tap-listen")

	return cmd
}

func run(parent context.Context, debug bool, p2p []string, tapListen, tapIf string) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("xconnect")
	if debug {
		logger = logging.NewVerbose("xconnect")
	}

	if len(p2p) > 0 {
		bridge := tcpbridge.New(logger)
		for _, edge := range p2p {
			if err := bridge.AddP2P(ctx, edge); err != nil {
				logger.Error("invalid p2p edge", "edge", edge, "error", err)
				return err
			}
		}
		<-ctx.Done()
		bridge.Stop()
		return nil
	}

	suffix, err := strconv.Atoi(tapListen)
	if err != nil {
		return fmt.Errorf("xconnect: --tap-listen must be numeric: %w", err)
	}

	tap, err := tcp2tap.OpenTap(tapIf)
	if err != nil {
		logger.Error("open tap", "error", err)
		return err
	}
	defer tap.Close()

	bridge := tcp2tap.New(logger, fmt.Sprintf("[::]:%d", 10000+suffix), tap)
	return bridge.Run(ctx)
}
