package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dsst-etl/providers/oddpub"
	"dsst-etl/services"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "reconcile",
		Short:        "Run one reconciliation of the object store against the database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.newReconciler()
			if err != nil {
				return err
			}
			summary, err := svc.Run(cmd.Context())
			if summary != nil {
				if perr := printJSON(cmd, summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func newUploadCommand(opts *rootOptions) *cobra.Command {
	var req services.UploadRequest
	cmd := &cobra.Command{
		Use:          "upload <dir>",
		Short:        "Upload local PDFs to the object store and record them",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			req.Dir = args[0]
			if req.MetadataFile == "" {
				req.MetadataFile = a.cfg.MetadataFile
			}
			if !cmd.Flags().Changed("is-pmids") {
				req.IsPMIDs = a.cfg.IsPMIDs
			}
			result, err := services.NewUploadService(a.cfg, a.db, a.store, a.log).Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d file(s) failed to upload", len(result.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.MetadataFile, "metadata", "", "metadata JSON with PMID/DOI/PMCID per file (default METADATA_FILE)")
	cmd.Flags().BoolVar(&req.IsPMIDs, "is-pmids", false, "create an identifier row even without metadata")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "comment stored with the provenance record")
	return cmd
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:          "analyze <dir>",
		Short:        "Run ODDPub on local PDFs and optionally store results for known documents",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			svc := services.NewLocalAnalysisService(a.cfg, a.db, oddpub.NewClient(a.cfg, a.log), a.log)
			results, err := svc.Run(cmd.Context(), args[0], approve || a.cfg.AutoApprove)
			if perr := printJSON(cmd, results); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&approve, "yes", "y", false, "store results without asking (same as AUTO_APPROVE=true)")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the database schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// bootstrap migriert bereits.
			a, err := bootstrap(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.close()
			a.log.Info("Schema is up to date", zap.String("db", a.cfg.DBName))
			return nil
		},
	}
}
