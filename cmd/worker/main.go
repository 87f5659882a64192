package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joshu-sajeev/previewq/internal/app"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/worker"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "preview-worker",
		Short:         "Process queued preview jobs until SIGINT or SIGTERM",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
	root.AddCommand(newStatusCmd())
	return root
}

func runWorker(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		logger.Default().Error("startup failed", "error", err)
		return err
	}
	defer a.Close()
	log := logger.Default()

	if err := worker.WritePIDFile(a.Config.PIDFile); err != nil {
		if errors.Is(err, worker.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, color.YellowString("%v", err))
		}
		log.Error("cannot start worker", "error", err)
		return err
	}
	defer func() {
		if err := worker.RemovePIDFile(a.Config.PIDFile); err != nil {
			log.Error("remove pid file", "error", err)
		}
	}()

	log.Info("worker running", "pid", os.Getpid(), "pid_file", a.Config.PIDFile)
	worker.NewWorker(a.Manager, worker.Options{IdleInterval: a.Config.IdleInterval}).Run(ctx)
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a worker is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}

			state, pid := worker.Status(cfg.PIDFile)
			out := cmd.OutOrStdout()
			if state == worker.StateRunning {
				fmt.Fprintf(out, "%s (pid %d)\n", color.GreenString(string(state)), pid)
			} else {
				fmt.Fprintln(out, color.RedString(string(state)))
			}
			return nil
		},
	}
}
