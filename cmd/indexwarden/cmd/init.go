package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/configs"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/output"
	"github.com/Aman-CERP/indexwarden/internal/store"
	"github.com/Aman-CERP/indexwarden/pkg/version"
)

func newInitCmd() *cobra.Command {
	var force bool
	var user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an archive in the current directory",
		Long: `Init creates the .indexwarden data directory: the archive database, a
starter configuration with every option commented, and a .gitignore entry
so index data stays out of version control.

With --user it instead writes the machine-wide configuration that applies
to every archive (logging, store tuning, metrics defaults).`,
		Example: `  indexwarden init            # Initialize the current directory
  indexwarden init --force    # Rewrite the starter config
  indexwarden init --user     # Write ~/.config/indexwarden/config.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user {
				return runInitUser(cmd, force)
			}
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user configuration instead")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	out.Statusf("🚀", "indexwarden %s — initializing archive...", version.Version)
	out.Newline()

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	// Nested archives work, but usually mean the wrong directory.
	if parent, err := config.FindArchiveRoot("."); err == nil && parent != root {
		out.Warningf("An archive already exists at %s; creating a nested one here", parent)
	}

	configPath := config.ProjectConfigPath(root)
	if !force && fileExists(configPath) {
		out.Warning("Archive already initialized (config.yml exists)")
		out.Status("💡", "Use --force to rewrite the starter config")
		return nil
	}

	if err := os.MkdirAll(config.DataDir(root), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configs.ArchiveConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Opening creates the database schema.
	archive, err := store.Open(config.ArchiveDBPath(root), store.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to create archive database: %w", err)
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}

	added, err := ensureGitignore(root)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Status("📝", "Added .indexwarden/ to .gitignore")
	}

	out.Newline()
	out.Success("Archive initialized")
	out.Detail("Root", root)
	out.Detail("Config", configPath)
	out.Detail("Archive", config.ArchiveDBPath(root))
	out.Newline()
	out.Status("💡", "Next steps:")
	out.Status("", "  indexwarden serve     # keep the indexes current")
	out.Status("", "  indexwarden status    # check archive health")
	out.Status("", "  indexwarden doctor    # verify system requirements")

	return nil
}

func runInitUser(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := config.GetUserConfigPath()
	if !force && fileExists(path) {
		out.Warning(fmt.Sprintf("User config already exists at %s", path))
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	out.Success("User configuration written")
	out.Detail("Config", path)
	return nil
}

// ensureGitignore appends a .indexwarden/ entry to the root .gitignore,
// matching the file's existing line endings. Returns whether an entry was
// added.
func ensureGitignore(root string) (bool, error) {
	gitignorePath := filepath.Join(root, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	if hasIndexwardenIgnore(string(content)) {
		return false, nil
	}

	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(lineEnding)...)
	}

	var entry string
	if len(content) == 0 {
		entry = fmt.Sprintf("# indexwarden index data (auto-generated)%s.indexwarden/%s",
			lineEnding, lineEnding)
	} else {
		entry = fmt.Sprintf("%s# indexwarden index data (auto-generated)%s.indexwarden/%s",
			lineEnding, lineEnding, lineEnding)
	}

	content = append(content, []byte(entry)...)

	if err := os.WriteFile(gitignorePath, content, 0644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}

	return true, nil
}

func hasIndexwardenIgnore(content string) bool {
	patterns := []string{
		".indexwarden",
		".indexwarden/",
		"/.indexwarden",
		"/.indexwarden/",
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, pattern := range patterns {
			if line == pattern {
				return true
			}
		}
	}
	return false
}
