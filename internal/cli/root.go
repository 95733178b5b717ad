package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	app          *appContext
)

var rootCmd = &cobra.Command{
	Use:   "confledger",
	Short: "Confledger - versioned configuration ledger with staged rollback",
	Long: `Confledger keeps an immutable, content-addressed history of a
configuration document under semantic version numbers. Candidate changes are
validated and impact-tested before they are committed, and any version can be
restored through risk-staged rollback plans.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		app, err = newAppContext()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .env in the working directory)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newImpactCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}

	viper.SetEnvPrefix("CONFLEDGER")
	viper.AutomaticEnv()

	viper.SetDefault("output", "table")
}

func getOutputFormat() string {
	if outputFormat != "" && outputFormat != "table" {
		return outputFormat
	}
	return viper.GetString("output")
}
