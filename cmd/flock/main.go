package main

import (
	"log"

	"github.com/absmach/flock/cli"
	"github.com/absmach/flock/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	defCoordinatorURL  = "http://localhost:7070"
	defTLSVerification = false
)

var coordinatorURL = defCoordinatorURL

func main() {
	rootCmd := &cobra.Command{
		Use:   "flock-cli",
		Short: "Flock CLI",
		Long:  `Flock CLI is a command line interface for interacting with Flock components.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: defTLSVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetFlockSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&coordinatorURL,
		"coordinator-url",
		"m",
		coordinatorURL,
		"Coordinator URL",
	)

	rootCmd.AddCommand(cli.NewCoordinatorCmd())
	rootCmd.AddCommand(cli.NewProvisionCmd())
	rootCmd.AddCommand(cli.NewConfigCmd())
	rootCmd.AddCommand(cli.NewModelCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
