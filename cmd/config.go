package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dawdle-sh/dawdle/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the active configuration",
	RunE:  configShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE:  configInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  configPathRun,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("provider:       %s\n", cfg.Provider)
	fmt.Printf("model:          %s\n", cfg.ActiveModel())
	fmt.Printf("max_iterations: %d\n", cfg.MaxIterations)
	fmt.Printf("sessions:       enabled=%v", cfg.Sessions.Enabled)
	if cfg.Sessions.MaxAgeDays > 0 {
		fmt.Printf(" max_age_days=%d", cfg.Sessions.MaxAgeDays)
	}
	if cfg.Sessions.MaxCount > 0 {
		fmt.Printf(" max_count=%d", cfg.Sessions.MaxCount)
	}
	fmt.Println()

	path, _ := config.GetConfigPath()
	if config.Exists() {
		fmt.Printf("\nConfig file: %s\n", path)
	} else {
		fmt.Printf("\nNo config file yet (defaults in effect). Create one: dawdle config init\n")
	}
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	if config.Exists() {
		path, _ := config.GetConfigPath()
		return fmt.Errorf("config already exists at %s", path)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	path, _ := config.GetConfigPath()
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func configPathRun(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
