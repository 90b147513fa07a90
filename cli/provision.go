package cli

import (
	"errors"
	"strconv"

	"github.com/absmach/flock"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var errInvalidNumber = errors.New("value must be a positive number")

var configPath = "config.toml"

// NewProvisionCmd walks the operator through an experiment configuration
// and writes it to a TOML file both binaries can load.
func NewProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision an experiment",
		Long:  `Interactively create an experiment configuration file.`,
		Run: func(cmd *cobra.Command, args []string) {
			var (
				mqttAddress = "tcp://localhost:1883"
				httpAddress = "localhost:7070"
				clientID    string
				rounds      = "3"
				minClients  = "2"
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("MQTT broker address").
						Value(&mqttAddress),
					huh.NewInput().
						Title("Coordinator HTTP address").
						Value(&httpAddress),
					huh.NewInput().
						Title("Participant client ID (leave empty for a generated one)").
						Value(&clientID),
					huh.NewInput().
						Title("Number of rounds").
						Value(&rounds).
						Validate(validateNumber),
					huh.NewInput().
						Title("Minimum clients per round").
						Value(&minClients).
						Validate(validateNumber),
				),
			)
			if err := form.Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			numRounds, _ := strconv.ParseUint(rounds, 10, 64)
			numClients, _ := strconv.Atoi(minClients)

			cfg := flock.Config{
				Coordinator: flock.CoordinatorConfig{
					MQTTAddress: mqttAddress,
					HTTPAddress: httpAddress,
					Rounds:      numRounds,
				},
				Participant: flock.ParticipantConfig{
					ClientID:    clientID,
					MQTTAddress: mqttAddress,
				},
				Strategy: flock.StrategyConfig{
					FractionFit:         1.0,
					FractionEvaluate:    1.0,
					MinFitClients:       numClients,
					MinEvaluateClients:  numClients,
					MinAvailableClients: numClients,
				},
			}

			if err := flock.SaveConfig(configPath, cfg); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Successfully wrote "+configPath)
			logJSONCmd(*cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(
		&configPath,
		"config",
		"c",
		configPath,
		"Path of the configuration file to write",
	)

	return cmd
}

func validateNumber(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errInvalidNumber
	}

	return nil
}

// NewConfigCmd prints a provisioned experiment configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View an experiment configuration",
		Long:  `Load and display a provisioned experiment configuration file.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := flock.LoadConfig(configPath)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(
		&configPath,
		"config",
		"c",
		configPath,
		"Path of the configuration file to read",
	)

	return cmd
}
