package cmd

import (
	"fmt"

	"github.com/agentic-research/lsf/internal/mcpserver"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <root> <query>",
	Short: "Run one query against the index and print the results",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd.Context(), args[0], refresh)
		if err != nil {
			return err
		}
		defer e.close()

		results, _, err := e.evaluate(args[1])
		if err != nil {
			return err
		}

		if jsonOut {
			fmt.Println(oj.JSON(results))
			return nil
		}
		for i, r := range results {
			printResult(i, r)
		}
		return nil
	},
}

func printResult(i int, r mcpserver.Result) {
	switch {
	case r.Size > 0 || r.Modified > 0:
		fmt.Printf("[%d] %s %s size=%d mtime=%d\n", i, r.Path, r.Type, r.Size, r.Modified)
	default:
		fmt.Printf("[%d] %s %s\n", i, r.Path, r.Type)
	}
}

func init() {
	searchCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit results as JSON")
	searchCmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cache and re-walk the root")
	rootCmd.AddCommand(searchCmd)
}
