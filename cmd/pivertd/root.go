package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "pivertd",
	Short:         "PIVert emulator daemon",
	Long:          `pivertd serves a NIST SP 800-73 PIV card emulator over the virtual-reader transport, backed by an operator-supplied PKCS#12 credential.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; flags and PIVERT_* env vars take precedence)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(installCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pivertd")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pivertd")
	}
	viper.SetEnvPrefix("PIVERT")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
