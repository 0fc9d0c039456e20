package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/phonebook/internal/api"
	"github.com/foxzi/phonebook/internal/app"
	"github.com/foxzi/phonebook/internal/config"
	"github.com/foxzi/phonebook/internal/repository"
	phonebookTLS "github.com/foxzi/phonebook/internal/tls"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	api.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "phonebook",
	Short: "Phonebook - extension directory server",
	Long: `Phonebook serves the public extension directory and the admin API
for extensions, queues, admin users and the audit trail.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the directory server",
	Long:  `Start the HTTP API, realtime watchers and, when enabled, the backend feed and metrics server.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill an empty store with the starter queues, extensions and admin",
	RunE:  runSeed,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("phonebook version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, seedCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Name: %s\n", cfg.Server.Name)
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Broadcast: %s (%s)\n", cfg.Broadcast.Driver, cfg.Broadcast.Channel)
	fmt.Printf("  Directory source: %s\n", cfg.Directory.Source)
	if cfg.Backend.Enabled {
		fmt.Printf("  Backend: enabled (notify channel %s)\n", cfg.Backend.NotifyChannel)
	} else {
		fmt.Printf("  Backend: disabled\n")
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}
	if cfg.RateLimit.Enabled {
		fmt.Printf("  Login rate limit: enabled\n")
	}
	if cfg.API.TLS.Enabled() {
		info, err := phonebookTLS.GetCertificateInfo(cfg.API.TLS.CertFile)
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		fmt.Printf("  TLS: %s (issuer %s, expires %s, %d days left)\n",
			info.Subject, info.Issuer, info.NotAfter.Format("2006-01-02"), info.DaysLeft)
	}

	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(context.Background())
	if err != nil {
		return err
	}
	defer ws.Close()

	seeded, err := ws.repos.Seed(context.Background())
	if err != nil {
		return err
	}
	if !seeded {
		fmt.Println("Store already has data, nothing seeded")
		return nil
	}

	fmt.Printf("Seeded %d queues, %d extensions and admin %s\n",
		len(ws.repos.Queues.List()), len(ws.repos.Extensions.List()), repository.SeedAdminEmail)
	return nil
}
