package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/phonebook/internal/backend"
	"github.com/foxzi/phonebook/internal/config"
	"github.com/foxzi/phonebook/internal/ipfilter"
	"github.com/foxzi/phonebook/internal/models"
)

var ipsApply bool

var ipsCmd = &cobra.Command{
	Use:   "ips",
	Short: "Admin IP allowlist commands (requires backend)",
}

var ipsNginxCmd = &cobra.Command{
	Use:   "nginx",
	Short: "Render the nginx allow block from the backend allowlist",
	Long: `Render the nginx allow block for the active backend allowlist entries.

With --apply the block replaces the one in nginx.conf_path (or is inserted
after real_ip_recursive), writing the previous file to nginx.backup_path.`,
	RunE: runIPsNginx,
}

var ipsTraefikCmd = &cobra.Command{
	Use:   "traefik",
	Short: "Render the Traefik ipWhiteList middleware from the backend allowlist",
	RunE:  runIPsTraefik,
}

func init() {
	for _, c := range []*cobra.Command{ipsNginxCmd, ipsTraefikCmd} {
		c.Flags().BoolVar(&ipsApply, "apply", false, "Write the result to the configured file")
	}

	ipsCmd.AddCommand(ipsNginxCmd, ipsTraefikCmd)
	rootCmd.AddCommand(ipsCmd)
}

func activeAllowlist(ctx context.Context) ([]models.AllowedIP, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Backend.Enabled {
		return nil, nil, fmt.Errorf("backend is not enabled in %s", cfgFile)
	}

	client, err := backend.Connect(ctx, backend.Config{
		DSN:            cfg.Backend.DSN,
		MaxConns:       2,
		ConnectTimeout: cfg.Backend.ConnectTimeout,
	}, cfg.Backend.NotifyChannel, cfg.Backend.QueryTimeout, cliLogger())
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	list, err := client.AllowedIPs.List(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	return list, cfg, nil
}

func runIPsNginx(cmd *cobra.Command, args []string) error {
	list, cfg, err := activeAllowlist(context.Background())
	if err != nil {
		return err
	}

	block := ipfilter.RenderNginx(list)
	if !ipsApply {
		fmt.Print(block)
		return nil
	}

	if err := ipfilter.UpdateNginxConfig(cfg.Nginx.ConfPath, cfg.Nginx.BackupPath, block); err != nil {
		return err
	}
	fmt.Printf("Updated %s with %d active entries (backup: %s)\n", cfg.Nginx.ConfPath, len(list), cfg.Nginx.BackupPath)
	fmt.Println("Reload nginx to apply: nginx -t && nginx -s reload")
	return nil
}

func runIPsTraefik(cmd *cobra.Command, args []string) error {
	list, cfg, err := activeAllowlist(context.Background())
	if err != nil {
		return err
	}

	data, err := ipfilter.RenderTraefik(list)
	if err != nil {
		return err
	}
	if !ipsApply {
		fmt.Print(string(data))
		return nil
	}

	if err := ipfilter.UpdateTraefikConfig(cfg.Traefik.DynamicConfigPath, cfg.Traefik.BackupPath, data); err != nil {
		return err
	}
	fmt.Printf("Updated %s with %d active entries\n", cfg.Traefik.DynamicConfigPath, len(list))
	return nil
}
