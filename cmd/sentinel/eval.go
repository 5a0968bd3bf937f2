package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinel-ops/sentinel/internal/eval"
)

func newEvalCmd() *cobra.Command {
	var compare bool

	cmd := &cobra.Command{
		Use:   "eval [runs-dir]",
		Short: "Score saved episodes under a runs directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "runs"
			if len(args) == 1 {
				root = args[0]
			}

			episodes, err := eval.LoadEpisodes(root)
			if err != nil {
				return err
			}
			if len(episodes) == 0 {
				return fmt.Errorf("no episodes found under %s", root)
			}

			out := cmd.OutOrStdout()
			evaluator := eval.NewEvaluator()

			for _, ep := range episodes {
				scores := evaluator.Evaluate(ep)
				fmt.Fprintf(out, "%-30s overall=%.2f correctness=%.2f completeness=%.2f efficiency=%.2f safety=%.2f\n",
					ep.EpisodeID, scores.OverallScore, scores.Correctness,
					scores.Completeness, scores.Efficiency, scores.Safety)
			}

			if compare && len(episodes) >= 2 {
				cmp := evaluator.Compare(episodes[0], episodes[1])
				fmt.Fprintf(out, "\n%s vs %s: winner %s (diff %.3f)\n",
					cmp.Episode1.ID, cmp.Episode2.ID, cmp.Winner, cmp.ScoreDiff)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&compare, "compare", false, "compare the first two episodes head to head")
	return cmd
}
