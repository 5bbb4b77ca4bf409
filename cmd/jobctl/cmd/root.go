package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "Jobctl is a command line tool for interacting with the longjob service",
	Long: `jobctl is the command-line interface for the longjob background job service.

longjob runs durable, resumable jobs: every unit of progress is persisted, so
a job that loses its worker resumes from its last checkpoint instead of
starting over.

Common workflows:

  Submit an encode job:
    jobctl submit --input "some text to encode"

  Check job state:
    jobctl status <job-id>

  Follow live progress over SSE:
    jobctl watch <job-id>

  Request cancellation:
    jobctl cancel <job-id>

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    LONGJOB_URL         API endpoint (default: http://localhost:6161)
    LONGJOB_USERNAME    Basic auth username
    LONGJOB_PASSWORD    Basic auth password
    LONGJOB_USER        Dev-mode principal sent as X-User-Id when auth is off`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".jobctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "LONGJOB_VARNAME"
	viper.SetEnvPrefix("LONGJOB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Longjob API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("username", "", "Basic auth username")
	viper.BindPFlag("username", rootCmd.PersistentFlags().Lookup("username"))

	rootCmd.PersistentFlags().String("password", "", "Basic auth password")
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))

	rootCmd.PersistentFlags().StringP("user", "u", "", "Principal sent as X-User-Id when basic auth is disabled")
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}
