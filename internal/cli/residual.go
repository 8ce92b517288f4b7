package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vendorrisk/internal/engine"
	"vendorrisk/internal/model"
)

func newResidualCmd() *cobra.Command {
	var v model.Vendor
	var verbose bool
	cmd := &cobra.Command{
		Use:   "residual",
		Short: "Compute the residual risk score of a single vendor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if v.InherentRisk < 0 {
				return fmt.Errorf("--inherent must not be negative")
			}
			score := engine.ScoreResidual(v)
			out := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(out, "inherent=%g tier_factor=%g incident_factor=%g compliance_factor=%g\n",
					score.InherentRisk, score.TierFactor, score.IncidentFactor, score.ComplianceFactor)
			}
			fmt.Fprintln(out, score.Residual)
			return nil
		},
	}
	cmd.Flags().Float64Var(&v.InherentRisk, "inherent", 50, "Inherent risk of the vendor")
	cmd.Flags().IntVar(&v.Tier, "tier", 3, "Vendor tier (1 is most critical)")
	cmd.Flags().IntVar(&v.Incidents, "incidents", 0, "Cumulative incident count")
	cmd.Flags().BoolVar(&v.Compliance.NIST, "nist", false, "Vendor is NIST compliant")
	cmd.Flags().BoolVar(&v.Compliance.ISO27001, "iso27001", false, "Vendor is ISO 27001 certified")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print the individual factors")
	return cmd
}
