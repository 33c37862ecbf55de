package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skinscan-backend/internal/baseline"
	"skinscan-backend/internal/fusion"
)

func newBaselineCmd() *cobra.Command {
	var (
		age  int
		kind string
	)
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Print the deterministic baseline analysis for an age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if age <= 0 || age > 150 {
				return fmt.Errorf("--age must be between 1 and 150")
			}
			var out any
			switch kind {
			case "symmetry":
				out = baseline.ReferenceSymmetry()
			case "metrics":
				out = baseline.SkinMetrics(age)
			case "wrinkles":
				out = baseline.Wrinkles()
			case "comprehensive":
				out = fusion.Fuse(fusion.Input{Age: age})
			default:
				return fmt.Errorf("--type must be one of symmetry, metrics, wrinkles, comprehensive")
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&age, "age", 35, "customer age")
	cmd.Flags().StringVar(&kind, "type", "comprehensive", "symmetry, metrics, wrinkles or comprehensive")
	return cmd
}
