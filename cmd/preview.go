package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/app"
)

func newPreviewCmd() *cobra.Command {
	var (
		flags     requestFlags
		withDiags bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List the pages a crawl would produce as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
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

			items, snap, err := svc.Preview(cmd.Context(), flags.request(cmd, rt.cfg.DefaultRequest()))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if withDiags {
				return enc.Encode(map[string]any{"run_id": snap.RunID, "items": items, "diagnostics": snap})
			}
			return enc.Encode(items)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&withDiags, "diagnostics", false, "include run diagnostics in the output")
	return cmd
}
