package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab/stratbench/pkg/strategy"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the registered strategy kinds and their default parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, kind := range strategy.Kinds() {
			params, err := strategy.DefaultParams(kind)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(params, "  ", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("%s\n  %s\n", kind, encoded)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
