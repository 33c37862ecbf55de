package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skinscan-backend/internal/analyses"
	"skinscan-backend/internal/bootstrap"
)

func newAnalyzeCmd(build appBuilder) *cobra.Command {
	var (
		age       int
		imagePath string
		clinicID  string
		userID    string
		useAI     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one scan through the full pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := analyses.Request{
				ClinicID: clinicID,
				UserID:   userID,
				Customer: analyses.Customer{Age: age},
				UseAI:    useAI,
			}
			if imagePath != "" {
				raw, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				req.ImageData = base64.StdEncoding.EncodeToString(raw)
			}
			return withApp(cmd, build, func(app *bootstrap.App) error {
				a, err := app.AnalysesService.Analyze(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), analyses.ResponseOf(a))
			})
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "customer age (required)")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a face image")
	cmd.Flags().StringVar(&clinicID, "clinic", "", "clinic id; empty skips AI escalation")
	cmd.Flags().StringVar(&userID, "user", "cli", "operator id recorded with the scan")
	cmd.Flags().BoolVar(&useAI, "use-ai", true, "request AI escalation")
	_ = cmd.MarkFlagRequired("age")
	return cmd
}
