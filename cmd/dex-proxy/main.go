package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/pokedex-client/pkg/aggregate"
	"github.com/Sternrassler/pokedex-client/pkg/config"
	"github.com/Sternrassler/pokedex-client/pkg/dex"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

var (
	configFile string
	debugMode  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dex-proxy",
		Short:         "Caching aggregation proxy for the Pokémon catalog API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newGetCommand(),
		newPageCommand(),
		newTypesCommand(),
		newSuggestCommand(),
	)
	return root
}

// setup loads configuration, configures the global logger and builds the
// service.
func setup() (*config.Config, *dex.Service, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Logging()
	if debugMode {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.Setup(logCfg)

	svc, err := dex.New(cfg.Service())
	if err != nil {
		return nil, nil, logger, fmt.Errorf("create service: %w", err)
	}
	return cfg, svc, logger, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newGetCommand() *cobra.Command {
	var lite bool

	cmd := &cobra.Command{
		Use:   "get <id-or-name>",
		Short: "Print the composite record of one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			variant := aggregate.VariantFull
			if lite {
				variant = aggregate.VariantLite
			}

			c, err := svc.GetComposite(cmd.Context(), args[0], variant)
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			return printJSON(cmd, c)
		},
	}
	cmd.Flags().BoolVar(&lite, "lite", false, "skip move type resolution")
	return cmd
}

func newPageCommand() *cobra.Command {
	var (
		number   int
		size     int
		category string
	)

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Print one page of the listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			if category != "" {
				page, err := svc.GetPageByCategory(ctx, category, number, size)
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			}

			page, err := svc.GetPage(ctx, number, size)
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		},
	}
	cmd.Flags().IntVar(&number, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 0, "page size (0 uses the configured default)")
	cmd.Flags().StringVar(&category, "type", "", "restrict to one type")
	return cmd
}

func newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the type categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			names, err := svc.GetCategoryList(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
}

func newSuggestCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Suggest entity names by prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, _, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			names, err := svc.SuggestNames(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "max", dex.DefaultSuggestions, "maximum suggestions")
	return cmd
}
