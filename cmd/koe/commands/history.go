package commands

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/koelabs/koe/pkg/cli"
)

var (
	historyLimit int
	historyJQ    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the detection history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent detections, newest first",
	Long: `List recent detections, newest first.

--jq filters the JSON entry list with a jq expression, e.g.:

  koe history list --jq '.[] | select(.verified) | .trigger'
  koe history list --jq '[.[] | .confidence] | add / length'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer log.Close()

		entries, err := log.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if historyJQ == "" {
			if len(entries) == 0 {
				cli.PrintInfo("no detections recorded")
				return nil
			}
			return output(entries)
		}

		query, err := gojq.Parse(historyJQ)
		if err != nil {
			return fmt.Errorf("invalid jq expression %q: %w", historyJQ, err)
		}
		// gojq wants plain maps and slices, so round-trip through JSON.
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		var input any
		if err := json.Unmarshal(data, &input); err != nil {
			return err
		}
		iter := query.RunWithContext(cmd.Context(), input)
		for {
			v, ok := iter.Next()
			if !ok {
				return nil
			}
			if err, isErr := v.(error); isErr {
				return fmt.Errorf("jq: %w", err)
			}
			if err := output(v); err != nil {
				return err
			}
		}
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded detections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer log.Close()

		if err := log.Clear(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("history cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum entries to return (default: retention cap)")
	historyListCmd.Flags().StringVar(&historyJQ, "jq", "", "filter entries with a jq expression")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
