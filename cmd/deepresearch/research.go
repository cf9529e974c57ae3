package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	srv "github.com/mohammad-safakhou/deepresearch/internal/server"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

func researchCMD() *cobra.Command {
	var (
		cfgPath    string
		sections   []string
		objectives []string
		required   []string
		exclusions []string
		language   string
		timeout    time.Duration
		maxSteps   int
		format     string
		save       bool
	)

	var cmd = &cobra.Command{
		Use:   "research [topic]",
		Short: "Run one research request and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "markdown", "pretty":
			default:
				return fmt.Errorf("unknown format %q (json|markdown|pretty)", format)
			}
			cfg := config.LoadConfig(cfgPath)

			body := srv.DeepResearchRequest{
				Topic:        strings.Join(args, " "),
				Objectives:   objectives,
				Context:      srv.ResearchContext{Language: language},
				Sources:      srv.SourcesConstraints{Required: required, Exclusions: exclusions},
				OutputFormat: srv.OutputFormat{Sections: sections},
			}
			if maxSteps > 0 {
				body.MaxSteps = &maxSteps
			}
			if timeout > 0 {
				secs := int(timeout / time.Second)
				body.Timeout = &secs
			}
			req, err := body.ToRequest(cfg.General, cfg.Research)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			deps, err := srv.BuildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			ans := deps.Orchestrator.Run(ctx, req)
			if save && ans.Success {
				if err := saveAnswer(ctx, cfg, ans); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "save report: %v\n", err)
				}
			}
			if err := writeAnswer(cmd, format, ans); err != nil {
				return err
			}
			if !ans.Success {
				return fmt.Errorf("research failed: %s", ans.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")
	cmd.Flags().StringArrayVar(&sections, "section", nil, "report section to use (repeatable)")
	cmd.Flags().StringArrayVar(&objectives, "objective", nil, "research objective (repeatable)")
	cmd.Flags().StringArrayVar(&required, "require", nil, "source URL that must be consulted (repeatable)")
	cmd.Flags().StringArrayVar(&exclusions, "exclude", nil, "host or URL pattern to skip, '*' wildcards allowed (repeatable)")
	cmd.Flags().StringVar(&language, "language", "", "search and report language (default en)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall run timeout (default general.default_timeout)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "external tool step cap (default research.max_steps)")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: json, markdown or pretty")
	cmd.Flags().BoolVar(&save, "save", false, "persist a successful report when postgres is configured")
	return cmd
}

func writeAnswer(cmd *cobra.Command, format string, ans research.Answer) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	case "pretty":
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return err
		}
		rendered, err := renderer.Render(RenderMarkdown(ans))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	default:
		_, err := fmt.Fprint(out, RenderMarkdown(ans))
		return err
	}
}

func saveAnswer(ctx context.Context, cfg *config.Config, ans research.Answer) error {
	dsn := cfg.PostgresDSN()
	if dsn == "" {
		return fmt.Errorf("postgres not configured")
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	rec, err := store.FromAnswer(ans)
	if err != nil {
		return err
	}
	return st.SaveReport(ctx, rec)
}
