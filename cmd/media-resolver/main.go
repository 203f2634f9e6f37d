// Package main is the entry point for the media resolver.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"media-resolver-go/internal/app"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "media-resolver",
		Short:        "Resolve social media post URLs into direct media URLs",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(serve, newResolveCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer application.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}
}

func newResolveCmd() *cobra.Command {
	var cookiesFile string

	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve one URL and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			req := types.ResolutionRequest{SourceURL: args[0]}
			if cookiesFile != "" {
				raw, err := os.ReadFile(cookiesFile)
				if err != nil {
					return fmt.Errorf("failed to read cookies file: %w", err)
				}
				req.CredentialBlob = base64.StdEncoding.EncodeToString(raw)
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer application.Shutdown()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := application.Resolver.Resolve(ctx, req)
			if err != nil {
				return fmt.Errorf("%s", types.Detail(err))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&cookiesFile, "cookies-file", "", "Netscape cookies.txt to use for the request")
	return cmd
}
