package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokenart/config"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render"
	"github.com/jonwraymond/tokenart/server"
)

// NewRootCommand builds the CLI. newResource opens the render resource.
func NewRootCommand(newResource resourceFactory) *cobra.Command {
	var store, artifactDir string

	root := &cobra.Command{
		Use:           "tokenart",
		Short:         "Render and cache token artwork",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&store, "store", "", "metadata store: redis, sqlite, or memory (overrides TOKENART_STORE)")
	root.PersistentFlags().StringVar(&artifactDir, "artifact-dir", "", "artifact directory (overrides TOKENART_ARTIFACT_DIR)")

	load := func() (config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return config.Config{}, err
		}
		if store != "" {
			cfg.Store = store
		}
		if artifactDir != "" {
			cfg.ArtifactDir = artifactDir
		}
		return cfg, cfg.Validate()
	}

	root.AddCommand(newServeCommand(load, newResource))
	root.AddCommand(newRenderCommand(load, newResource))
	return root
}

func newServeCommand(load func() (config.Config, error), newResource resourceFactory) *cobra.Command {
	var addr string
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, newResource)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					a.logger.Error(closeCtx, "shutdown failed", observe.F("error", err))
				}
			}()

			var opts []server.Option
			if cfg.Telemetry.MetricsExporter == "prometheus" {
				opts = append(opts, server.WithPrometheus())
			}
			srv := server.New(a.svc, a.artifacts, a.health, a.logger, opts...)
			return srv.Run(ctx, cfg.Addr, grace)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TOKENART_ADDR)")
	cmd.Flags().DurationVar(&grace, "shutdown-grace", server.DefaultShutdownGrace, "time to drain requests on shutdown")
	return cmd
}

func newRenderCommand(load func() (config.Config, error), newResource resourceFactory) *cobra.Command {
	var (
		scriptPath   string
		templateName string
		req          render.Request
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one token and print its artifact paths and metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			req.Script = string(script)
			if req.Template, err = render.ParseTemplateType(templateName); err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, newResource)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			image, err := a.svc.StaticImagePath(ctx, req)
			if err != nil {
				return err
			}
			thumb, err := a.svc.ThumbnailPath(ctx, req)
			if err != nil {
				return err
			}
			meta, err := a.svc.Metadata(ctx, req)
			if err != nil {
				return err
			}

			out := struct {
				Image     string          `json:"image"`
				Thumbnail string          `json:"thumbnail"`
				Metadata  json.RawMessage `json:"metadata"`
			}{image, thumb, meta}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "path to the render script")
	cmd.Flags().StringVar(&templateName, "type", "p5", "document template: p5 or svg")
	cmd.Flags().StringVar(&req.Token.TokenHash, "hash", "", "token hash")
	cmd.Flags().StringVar(&req.Token.TokenID, "id", "", "token id")
	cmd.Flags().IntVar(&req.Count, "count", 0, "collection count exposed to the script")
	_ = cmd.MarkFlagRequired("script")
	_ = cmd.MarkFlagRequired("hash")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
