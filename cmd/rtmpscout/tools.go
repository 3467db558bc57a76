package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rtmpscout/internal/core/services"
	"rtmpscout/internal/infrastructure/capture"
	"rtmpscout/internal/infrastructure/export"
	"rtmpscout/internal/infrastructure/repositories/memory"
	"rtmpscout/pkg/validation"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture interfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := capture.ListInterfaces()
		if err != nil {
			return fmt.Errorf("list interfaces: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, iface := range ifaces {
			line := iface.Name
			if iface.Description != "" {
				line += "  (" + iface.Description + ")"
			}
			if len(iface.Addresses) > 0 {
				line += "  " + strings.Join(iface.Addresses, ", ")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var (
	tokenOperator string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret is not set (or RTMPSCOUT_JWT_SECRET)")
		}
		ttl := cfg.API.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := services.NewAuthService(cfg.API.JWTSecret, ttl).GenerateToken(tokenOperator)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var (
	replayFilter string
	replayExport string
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Run extraction over a capture file and print what was found",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "operator", "subject recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default api.token_ttl)")

	replayCmd.Flags().StringVar(&replayFilter, "filter", "", "BPF filter applied while reading")
	replayCmd.Flags().StringVarP(&replayExport, "export", "o", "", "write results as JSON to this path")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayExport != "" {
		if err := validation.ValidateExportPath(replayExport); err != nil {
			return err
		}
	}

	metrics := services.NewMetricsService(nil)
	store := memory.NewMemoryResultStore()
	pipeline := services.NewCapturePipeline(
		services.NewFrameNormalizer(metrics),
		services.NewCredentialExtractor(log),
		store, nil, metrics, log,
	)

	source := capture.NewSource(captureConfig(), metrics, log,
		capture.WithBackends(capture.ReplayOpener(args[0]), nil),
		capture.WithoutFallback(),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := source.Start(ctx, "", replayFilter, pipeline.Handler()); err != nil {
		return err
	}
	if err := source.Wait(ctx); err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}

	snap := store.Snapshot()
	stats := metrics.Stats()
	log.Infow("Replay finished",
		"file", args[0],
		"frames", stats.FramesSeen,
		"duplicates", stats.FramesDuplicate,
		"urls", len(snap.URLs),
		"commands", len(snap.Commands),
	)

	if replayExport != "" {
		if err := export.WriteJSON(replayExport, snap); err != nil {
			return err
		}
		log.Infow("Results exported", "path", replayExport)
		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(export.Build(snap))
}

