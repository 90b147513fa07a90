package cli

import (
	"encoding/json"
	"os"

	"github.com/absmach/flock/pkg/oci"
	"github.com/absmach/flock/wire"
	"github.com/spf13/cobra"
)

var (
	regUsername string
	regPassword string
)

// NewModelCmd moves checkpointed model parameters in and out of an OCI
// registry.
func NewModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model [push|pull]",
		Short: "Model artifacts",
		Long:  `Push and pull global model parameters as OCI artifacts.`,
	}

	pushCmd := &cobra.Command{
		Use:   "push <repository> <tag> <file>",
		Short: "Push model parameters",
		Long:  `Push a checkpointed parameter file to an OCI registry.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			data, err := os.ReadFile(args[2])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			var params wire.Parameters
			if err := json.Unmarshal(data, &params); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			client := oci.NewClient(oci.Config{
				RegistryURL:  args[0],
				Authenticate: regUsername != "",
				Username:     regUsername,
				Password:     regPassword,
			})
			digest, err := client.Push(cmd.Context(), args[0], args[1], params)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Successfully pushed "+digest)
		},
	}

	pullCmd := &cobra.Command{
		Use:   "pull <repository> <tag> <file>",
		Short: "Pull model parameters",
		Long:  `Pull model parameters from an OCI registry into a file.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			client := oci.NewClient(oci.Config{
				RegistryURL:  args[0],
				Authenticate: regUsername != "",
				Username:     regUsername,
				Password:     regPassword,
			})
			params, err := client.Pull(cmd.Context(), args[0], args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			data, err := json.MarshalIndent(params, "", "  ")
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := os.WriteFile(args[2], data, 0o644); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&regUsername, "username", "u", "", "Registry username")
	cmd.PersistentFlags().StringVarP(&regPassword, "password", "p", "", "Registry password")

	cmd.AddCommand(pushCmd)
	cmd.AddCommand(pullCmd)

	return cmd
}
