package ipfilter

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/foxzi/phonebook/internal/models"
)

const (
	nginxHeader = "# WHITELIST DE IPS - Permitir apenas IPs específicos"
	nginxFooter = "    deny all;                     # Bloquear todos os outros"
)

var (
	nginxBlockRe  = regexp.MustCompile(`(?s)# WHITELIST DE IPS.*?deny all;.*?# Bloquear todos os outros`)
	nginxAnchorRe = regexp.MustCompile(`real_ip_recursive on;`)
)

// RenderNginx renders the nginx allow block for the active entries.
// With no active entries the block denies everyone.
func RenderNginx(entries []models.AllowedIP) string {
	var b strings.Builder
	b.WriteString(nginxHeader)
	b.WriteByte('\n')

	for _, e := range entries {
		if !e.Active || e.IP == "" {
			continue
		}
		fmt.Fprintf(&b, "    allow %s;", e.IP)
		if e.Description != nil && *e.Description != "" {
			fmt.Fprintf(&b, "       # %s", *e.Description)
		}
		b.WriteByte('\n')
	}

	b.WriteString(nginxFooter)
	return b.String()
}

// ReplaceNginxBlock swaps the existing allow block in content for block,
// or inserts it after the real_ip_recursive directive. ok is false when
// neither the block nor the anchor is present.
func ReplaceNginxBlock(content, block string) (string, bool) {
	if loc := nginxBlockRe.FindStringIndex(content); loc != nil {
		return content[:loc[0]] + block + content[loc[1]:], true
	}

	loc := nginxAnchorRe.FindStringIndex(content)
	if loc == nil {
		return content, false
	}
	return content[:loc[1]] + "\n\n" + block + content[loc[1]:], true
}

// UpdateNginxConfig rewrites the nginx config at path with block, writing
// the previous content to backupPath first (skipped when empty)
func UpdateNginxConfig(path, backupPath, block string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read nginx config: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat nginx config: %w", err)
	}

	if backupPath != "" {
		if err := os.WriteFile(backupPath, data, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write nginx backup: %w", err)
		}
	}

	updated, ok := ReplaceNginxBlock(string(data), block)
	if !ok {
		return fmt.Errorf("failed to locate allow block or real_ip_recursive directive in %s", path)
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write nginx config: %w", err)
	}
	return nil
}
