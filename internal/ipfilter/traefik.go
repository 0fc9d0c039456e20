package ipfilter

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/phonebook/internal/models"
)

// TraefikMiddleware is the name of the generated middleware
const TraefikMiddleware = "ipwhitelist"

type traefikDynamic struct {
	HTTP traefikHTTP `yaml:"http"`
}

type traefikHTTP struct {
	Middlewares map[string]traefikMiddleware `yaml:"middlewares"`
}

type traefikMiddleware struct {
	IPWhiteList traefikWhiteList `yaml:"ipWhiteList"`
}

type traefikWhiteList struct {
	SourceRange []string `yaml:"sourceRange"`
}

// RenderTraefik renders a Traefik dynamic configuration holding one
// ipWhiteList middleware over the active entries. An empty source range
// blocks everyone.
func RenderTraefik(entries []models.AllowedIP) ([]byte, error) {
	ranges := []string{}
	for _, e := range entries {
		if e.Active && e.IP != "" {
			ranges = append(ranges, e.IP)
		}
	}

	doc := traefikDynamic{HTTP: traefikHTTP{Middlewares: map[string]traefikMiddleware{
		TraefikMiddleware: {IPWhiteList: traefikWhiteList{SourceRange: ranges}},
	}}}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal traefik config: %w", err)
	}
	return data, nil
}

// UpdateTraefikConfig writes data to path, creating its directory and
// copying an existing file to backupPath first (skipped when empty)
func UpdateTraefikConfig(path, backupPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create traefik config directory: %w", err)
	}

	if backupPath != "" {
		prev, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := os.WriteFile(backupPath, prev, 0644); err != nil {
				return fmt.Errorf("failed to write traefik backup: %w", err)
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("failed to read traefik config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write traefik config: %w", err)
	}
	return nil
}
