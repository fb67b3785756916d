package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tgcd",
		Short:         "Temporal graph community detection",
		Long:          "tgcd splits a timestamped interaction log into windows, converts each window into a temporal proximity matrix and detects its community hierarchy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "configuration file (yaml, json or toml)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level")
	flags.StringVar(&a.driver, "storage", "file", "storage driver: file or sqlite")
	flags.StringVar(&a.dataDir, "data-dir", "./data", "directory of the file store")

	root.AddCommand(
		newSplitCommand(a),
		newConvertCommand(a),
		newDetectCommand(a),
		newRunCommand(a),
		newFlattenCommand(a),
	)
	return root
}

func newSplitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <events-file>",
		Short: "Cut the interaction log into time windows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEventsFile(args[0])
			if err != nil {
				return err
			}
			parts, err := a.pipeline.Split(cmd.Context(), events)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), partition.Summarize(parts))
		},
	}
}

func newConvertCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert [partition...]",
		Short: "Build temporal proximity matrices of stored partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := a.partitions(cmd, args)
			if err != nil {
				return err
			}
			for _, n := range numbers {
				dist, err := a.pipeline.Convert(cmd.Context(), n)
				if err != nil {
					return err
				}
				rows, _ := dist.Dims()
				fmt.Fprintf(cmd.OutOrStdout(), "partition %d: %d actors\n", n, rows)
			}
			return nil
		},
	}
}

func newDetectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [partition...]",
		Short: "Detect communities in converted partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := a.partitions(cmd, args)
			if err != nil {
				return err
			}
			for _, n := range numbers {
				result, _, err := a.pipeline.Detect(cmd.Context(), n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "partition %d: %s, %d communities, modularity %.6f\n",
					n, result.Status, len(result.Communities()), result.Modularity)
			}

			q, err := a.pipeline.Modularities(cmd.Context())
			if err != nil {
				return err
			}
			return a.store.SaveModularities(cmd.Context(), q)
		},
	}
}

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <events-file>",
		Short: "Split, convert and detect in one pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEventsFile(args[0])
			if err != nil {
				return err
			}
			report, err := a.pipeline.Run(cmd.Context(), events)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newFlattenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <partition>",
		Short: "Print the flat communities of a detected partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid partition number %q: %w", args[0], err)
			}
			result, err := a.store.LoadResult(cmd.Context(), n)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), modularity.Flatten(result.Hierarchy))
		},
	}
}

// partitions returns the partition numbers named in args, or every stored one
func (a *app) partitions(cmd *cobra.Command, args []string) ([]int, error) {
	if len(args) == 0 {
		return a.store.Partitions(cmd.Context())
	}
	numbers := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid partition number %q: %w", arg, err)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func readEventsFile(path string) ([]temporal.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()
	return partition.ReadEvents(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
