package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "drpcd",
	Short: "Reference drpc server and client",
}
