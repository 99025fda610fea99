package protocol

import (
	"fmt"
	"path/filepath"

	"github.com/datazip-inc/pipes/constants"
	"github.com/datazip-inc/pipes/logger"
	"github.com/datazip-inc/pipes/projection"
	"github.com/datazip-inc/pipes/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath            string
	destinationConfigPath string
	statePath             string
	envFile               string
	metricsAddr           string
	noSave                bool

	commands = []*cobra.Command{}
	// registered deployment; set by CreateRootCommand
	registered *projection.Projection
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "pipes",
	Short: "resumable block stream pipelines",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file[%s]: %s", envFile, err)
			}
		}
		viper.SetEnvPrefix(constants.EnvPrefix)
		viper.AutomaticEnv()

		setFolders()
		// logger uses CONFIG_FOLDER
		logger.Init()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'pipes --help' to display usage guide", args[0])
		}

		return nil
	},
}

// setFolders points file checkpoints next to the config files. --no-save only
// turns off the log and checkpoint mirrors kept in the config folder.
func setFolders() {
	folder := utils.Ternary(configPath == "", filepath.Dir(destinationConfigPath), filepath.Dir(configPath))
	viper.Set(constants.StateFolder, filepath.Join(folder, "state"))
	viper.Set(constants.ConfigFolder, utils.Ternary(noSave, "", folder))
}

// CreateRootCommand wires the commands to the one projection this binary runs
func CreateRootCommand(p *projection.Projection) (*cobra.Command, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	registered = p
	RootCmd.Use = p.Name
	RootCmd.AddCommand(commands...)
	return RootCmd, nil
}

func init() {
	commands = append(commands, specCmd, checkCmd, syncCmd, checkpointCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "", "(Required) Portal and streams config")
	RootCmd.PersistentFlags().StringVarP(&destinationConfigPath, "destination", "", "", "(Required) Destination config")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "(Optional) Checkpoint store config, defaults to files in the config folder")
	RootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "", "", "(Optional) .env file loaded before reading PIPES_* overrides")
	RootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics-addr", "", "", "(Optional) Address serving prometheus metrics, e.g. :9090")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "(Optional) Skip log files and checkpoint mirrors; file checkpoints are still kept")
	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
