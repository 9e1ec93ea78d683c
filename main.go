package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/choraleia/coach/pkg/coach"
	"github.com/choraleia/coach/pkg/config"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "coach",
		Short:        "Interest coach chat backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ~/.coach/config.yaml)")

	root.AddCommand(serveCMD(&cfgPath), askCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and initializes logging from it.
func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path != "" {
		cfg, _, err = config.LoadFile(path)
	} else {
		if _, err := config.EnsureDefaultConfig(); err != nil {
			utils.GetLogger().Warn("Failed to write default config", "error", err)
		}
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	utils.InitLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func serveCMD(cfgPath *string) *cobra.Command {
	var port int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = &port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := NewServer(ctx, cfg)
			if err != nil {
				return err
			}
			defer server.Close()
			return server.Run(ctx)
		},
	}
	serve.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return serve
}

func askCMD(cfgPath *string) *cobra.Command {
	var (
		search   bool
		thinking bool
		asJSON   bool
	)
	ask := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask the coach once and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			c, err := newCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.orchestrator.Invoke(ctx, coach.Request{
				UserID:          "cli",
				Input:           strings.Join(args, " "),
				UseWebSearch:    search,
				UseDeepThinking: thinking,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if result.ThinkingContent != "" {
				fmt.Fprintf(out, "深度思考：\n%s\n\n", result.ThinkingContent)
			}
			fmt.Fprintln(out, result.Content)
			if result.TodoData != nil {
				for _, item := range result.TodoData.Items {
					fmt.Fprintf(out, "- [%s] %s (%d 分钟, %s)\n", item.Priority, item.Content, item.EstimatedTime, item.Category)
				}
			}
			return nil
		},
	}
	ask.Flags().BoolVarP(&search, "search", "s", false, "enable web search")
	ask.Flags().BoolVarP(&thinking, "think", "t", false, "enable deep thinking")
	ask.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return ask
}
