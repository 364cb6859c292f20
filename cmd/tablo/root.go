package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablodata/tablo/pkg/config"
)

var cfgFile string
var logLevel string
var cfg *config.Config
var rootCmd = &cobra.Command{
	Use:   "tablo",
	Short: "tablo serves schema-described datasets over a read API",
	Long:  `tablo exposes relational datasets, described by declarative per-dataset schemas, through a uniform linked read API.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/tablo.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
}
