package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/config"
	"github.com/ZayedOfficial/truthshield/internal/discrepancy"
)

func analyzeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one discrepancy analysis from files and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			surveyPath, _ := cmd.Flags().GetString("survey")
			notesPath, _ := cmd.Flags().GetString("notes")
			live, _ := cmd.Flags().GetBool("live")
			plain, _ := cmd.Flags().GetBool("plain")

			survey, err := os.ReadFile(surveyPath)
			if err != nil {
				return fmt.Errorf("read survey: %w", err)
			}
			notes, err := os.ReadFile(notesPath)
			if err != nil {
				return fmt.Errorf("read notes: %w", err)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			if !live {
				logger = zerolog.Nop()
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if live {
				if err := a.engine.Load(ctx); err != nil {
					logger.Warn().Err(err).Msg("model not available")
				}
			}

			res, err := a.analyzer.Analyze(ctx, discrepancy.Request{
				Survey:     string(survey),
				Notes:      string(notes),
				Simulation: !live,
			})
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), res, plain)
		},
	}
	cmd.Flags().String("survey", "", "File with the anonymous patient survey")
	cmd.Flags().String("notes", "", "File with the clinician notes")
	cmd.Flags().Bool("live", false, "Use the configured model server instead of simulation")
	cmd.Flags().Bool("plain", false, "Print raw markdown")
	_ = cmd.MarkFlagRequired("survey")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func printReport(w io.Writer, res *discrepancy.Result, plain bool) error {
	out := res.ReportText
	if !plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("create renderer: %w", err)
		}
		if out, err = r.Render(res.ReportText); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
	}
	if _, err := fmt.Fprintln(w, out); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "ENGINE: %s  SCENARIO: %s  CRITICAL: %t  ELAPSED: %s\n",
		res.Engine, orDash(res.ScenarioID), res.Critical, res.Elapsed)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the demo scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := clinical.Load()
			if err != nil {
				return err
			}
			return listScenarios(cmd.OutOrStdout(), catalog)
		},
	}
}

func listScenarios(w io.Writer, catalog *clinical.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tDEPARTMENT\tAGE\tVISIT")
	for _, s := range catalog.Scenarios() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Key, s.Title, s.Department, s.Age, s.VisitType)
	}
	return tw.Flush()
}
