package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/app"
	"github.com/JakeFAU/sitekb-crawler/internal/export"
)

func newGenerateCmd() *cobra.Command {
	var (
		flags  requestFlags
		format string
		outDir string
		output string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Crawl a site once and write the bundle to disk",
		Example: `  sitekb-crawler generate --url https://docs.example.com --max-pages 50
  sitekb-crawler generate --url https://docs.example.com --format zip --out-dir build`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			svc, err := app.New(cmd.Context(), rt.cfg, rt.logger.Named("app"))
			if err != nil {
				return fmt.Errorf("init application: %w", err)
			}
			defer func() {
				if cerr := svc.Close(); cerr != nil {
					rt.logger.Warn("failed to close application", zap.Error(cerr))
				}
			}()

			out, err := svc.Generate(cmd.Context(), flags.request(cmd, rt.cfg.DefaultRequest()), f)
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = filepath.Join(outDir, out.Bundle.Filename)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if err := os.WriteFile(target, out.Bundle.Data, 0o644); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}

			snap := out.Diagnostics
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages, %d thin, %d skipped links, %d errors)\n",
				target, snap.PagesCount, snap.ThinPagesCount, snap.SkippedLinks, len(snap.Errors))
			if snap.TimedOut {
				fmt.Fprintln(cmd.OutOrStdout(), "crawl budget elapsed; the bundle is partial")
			}
			if out.StoredURI != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "stored at %s\n", out.StoredURI)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(export.FormatCombined), "bundle format: combined or zip")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for the bundle")
	cmd.Flags().StringVarP(&output, "output", "o", "", "exact output path (overrides --out-dir)")
	return cmd
}
