package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ising/internal/accel"
	"ising/internal/app"
	"ising/internal/snapshot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ising",
		Short:         "Metropolis Monte Carlo for the 2-D Ising model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr), newParamsCmd(stdout), newInspectCmd(stdout))
	return root
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := app.NewConfig()
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed, distribute and evolve a lattice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := loadWithOverrides(cfg, configPath, cmd.Flags()); err != nil {
					return err
				}
			}
			a, err := app.New(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			_, err = a.Run(cmd.Context())
			return err
		},
	}
	cfg.Bind(cmd.Flags())
	cmd.Flags().StringVar(&configPath, "config", "", "YAML file with run settings; explicit flags win")
	return cmd
}

// loadWithOverrides reads the YAML file into cfg and then reapplies every
// flag the user set explicitly.
func loadWithOverrides(cfg *app.Config, path string, fs *pflag.FlagSet) error {
	changed := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		if f.Name != "config" {
			changed[f.Name] = f.Value.String()
		}
	})
	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	for name, val := range changed {
		if err := fs.Set(name, val); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

func newParamsCmd(stdout io.Writer) *cobra.Command {
	cfg := app.NewConfig()
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the resolved simulation parameters and available devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := cfg.Parameters().WriteTo(stdout); err != nil {
				return err
			}
			_, err := fmt.Fprintf(stdout, "Devices: %v\n", accel.Devices())
			return err
		},
	}
	cfg.Bind(cmd.Flags())
	return cmd
}

func newInspectCmd(stdout io.Writer) *cobra.Command {
	var (
		path  string
		runID string
		step  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List or print snapshots kept in an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arch, err := snapshot.OpenArchive(snapshot.ArchiveConfig{Path: path, RunID: runID})
			if err != nil {
				return err
			}
			defer arch.Close()
			if step < 0 {
				steps, err := arch.Steps()
				if err != nil {
					return err
				}
				for _, s := range steps {
					fmt.Fprintln(stdout, s)
				}
				return nil
			}
			lat, err := arch.Load(step)
			if err != nil {
				return err
			}
			return snapshot.NewText(stdout, limit).Emit(step, lat)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&path, "archive", "", "badger directory written by run --archive")
	fs.StringVar(&runID, "run-id", "", "run to inspect")
	fs.IntVar(&step, "step", -1, "print this step (default: list steps)")
	fs.IntVar(&limit, "print-limit", 0, "print at most N rows and columns")
	_ = cmd.MarkFlagRequired("archive")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
