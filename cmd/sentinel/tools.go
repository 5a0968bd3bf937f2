package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinel-ops/sentinel/internal/tools"
	"github.com/sentinel-ops/sentinel/internal/types"
)

func newToolsCmd() *cobra.Command {
	var riskFilter string
	var permFilter string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewRegistry()
			if err := tools.RegisterMockTools(registry); err != nil {
				return err
			}

			filter := tools.ListFilter{}
			if riskFilter != "" {
				risk, err := types.ParseRiskLevel(riskFilter)
				if err != nil {
					return err
				}
				filter.RiskLevel = risk
			}
			if permFilter != "" {
				perm, err := types.ParsePermissionLevel(permFilter)
				if err != nil {
					return err
				}
				filter.Permission = perm
			}

			out := cmd.OutOrStdout()
			for _, spec := range registry.List(filter) {
				fmt.Fprintf(out, "%-20s %-12s %-9s %s\n",
					spec.Name, spec.RiskLevel, spec.PermissionRequired, spec.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&riskFilter, "risk", "", "filter by risk level: read_only, safe_write or risky_write")
	cmd.Flags().StringVar(&permFilter, "permission", "", "filter by caller permission: guest, operator or admin")
	return cmd
}
