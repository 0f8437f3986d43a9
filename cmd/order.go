package cmd

import (
	"fmt"
	"strings"

	"github.com/adalundhe/varelim/core/network"
	"github.com/adalundhe/varelim/core/ordering"
	"github.com/spf13/cobra"
)

var (
	orderNetwork   string
	orderHeuristic string
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show the elimination orders the heuristics produce",
	Long: `Print the elimination order of every registered heuristic for a network,
or of a single heuristic with --heuristic.

Examples:
  varelim order -n earthquake.yaml
  varelim order -n earthquake.yaml --heuristic fewest`,
	Args: cobra.NoArgs,
	RunE: runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)

	orderCmd.Flags().StringVarP(&orderNetwork, "network", "n", "", "Network YAML file")
	orderCmd.Flags().StringVar(&orderHeuristic, "heuristic", "", "Only this heuristic")
	_ = orderCmd.MarkFlagRequired("network")
}

func runOrder(cmd *cobra.Command, _ []string) error {
	n, err := network.Load(orderNetwork)
	if err != nil {
		return err
	}

	names := ordering.Names()
	if orderHeuristic != "" {
		names = []string{orderHeuristic}
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		o, err := ordering.ByName(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-22s %s\n", o.Name(), strings.Join(o.Resolve(n), " "))
	}
	return nil
}
