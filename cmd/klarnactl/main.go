package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var pretty bool

func main() {
	rootCmd := &cobra.Command{
		Use:     "klarnactl",
		Short:   "Operator tooling for the Klarna checkout service",
		Version: Version,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "indent JSON output")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(payloadCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(auditCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
