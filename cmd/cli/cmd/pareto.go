package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"mosaic/internal/pareto"

	"github.com/spf13/cobra"
)

var (
	paretoLayers int
	paretoP      float64
	paretoQ      float64
	paretoJSON   bool
)

var paretoCmd = &cobra.Command{
	Use:   "pareto",
	Short: "Compute per-layer bin probabilities",
	Long: `Compute how bins spread over storage layers for a p/q rule, such as
80% of bins in the top 20% of layers. Runs locally.

--json prints the probabilities as an array for parameters.pareto_probabilities.

Example:
  mosaicctl pareto --layers 10 --p 0.8 --q 0.2`,
	Run: func(cmd *cobra.Command, args []string) {
		dist, err := pareto.LayerProbabilities(paretoLayers, paretoP, paretoQ)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		if paretoJSON {
			out, err := json.Marshal(dist.Probabilities)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return
		}

		top := min(int(dist.X0), paretoLayers)
		cmd.Printf("%.1f%% of bins go into top %d layers\n", dist.TopShare()*100, top)
		cmd.Printf("%salpha=%.4f x0=%.4f%s\n\n", colorDim, dist.Alpha, dist.X0, colorReset)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "LAYER\tPROBABILITY")
		for i, p := range dist.Probabilities {
			fmt.Fprintf(w, "%d\t%.4f\n", i+1, p)
		}
		w.Flush()
	},
}

func init() {
	flags := paretoCmd.Flags()
	flags.IntVar(&paretoLayers, "layers", 10, "Number of storage layers")
	flags.Float64Var(&paretoP, "p", 0.8, "Share of bins")
	flags.Float64Var(&paretoQ, "q", 0.2, "Share of layers holding p")
	flags.BoolVar(&paretoJSON, "json", false, "Print probabilities as a JSON array")
	rootCmd.AddCommand(paretoCmd)
}
