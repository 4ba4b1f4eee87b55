package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mseverin/taskwright/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskwright version %s\n", version.Get())
	},
}
