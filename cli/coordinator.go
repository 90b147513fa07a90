package cli

import (
	"github.com/absmach/flock/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var fsdk sdk.SDK

func SetFlockSDK(s sdk.SDK) {
	fsdk = s
}

func NewCoordinatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinator [status|history|clients|health]",
		Short: "Coordinator inspection",
		Long:  `Inspect the run status, round history and registered clients of a coordinator.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "View run status",
		Long:  `View the coordinator's current run status.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.GetStatus()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View round history",
		Long:  `View the per-round history of the current or last run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			h, err := fsdk.GetHistory()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	}

	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "List clients",
		Long:  `List the participants registered with the coordinator.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			p, err := fsdk.ListClients(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check health",
		Long:  `Check the coordinator's health endpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			h, err := fsdk.Health()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	}

	cmd.AddCommand(statusCmd)
	cmd.AddCommand(historyCmd)
	cmd.AddCommand(clientsCmd)
	cmd.AddCommand(healthCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}
