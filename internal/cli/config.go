package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/output"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var configInitForce bool

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and create the fedwallet configuration file.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Create a default configuration file at ~/.fedwallet/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after environment overrides and flags.
The engine passphrase is never printed.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by its dotted path.

Examples:
  fedwallet config get sync.interval_seconds
  fedwallet config get authorization.base_url`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := config.Path(config.ExpandHome(cc.Cfg.GetHome()))

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fwerr.WithSuggestion(
			fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{"path": path}),
			"configuration already exists; use --force to overwrite",
		)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	fresh := config.Defaults()
	fresh.Home = cc.Cfg.GetHome()
	if err := config.Save(fresh, path); err != nil {
		return err
	}
	output.Success(cmd.OutOrStdout(), "Configuration written to %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	redacted := redactConfig(cc.Cfg)

	f := cc.Output(cmd)
	if f.IsJSON() {
		tree, err := configTree(redacted)
		if err != nil {
			return err
		}
		return f.Print(tree)
	}
	data, err := yaml.Marshal(redacted)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	value, err := configValue(redactConfig(cc.Cfg), args[0])
	if err != nil {
		return err
	}

	f := cc.Output(cmd)
	if f.IsJSON() {
		return f.Print(map[string]any{args[0]: value})
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
	return err
}

// redactConfig returns a copy of c without secrets.
func redactConfig(c *config.Config) *config.Config {
	out := *c
	if out.Engine.Passphrase != "" {
		out.Engine.Passphrase = "********"
	}
	out.Authorization.BaseURL = config.SanitizeURL(out.Authorization.BaseURL)
	return &out
}

// configTree returns c as the generic map its YAML form decodes to.
func configTree(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err = yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// configValue resolves a dotted path against the YAML form of c.
func configValue(c *config.Config, path string) (any, error) {
	tree, err := configTree(c)
	if err != nil {
		return nil, err
	}

	var node any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, unknownKey(path)
		}
		if node, ok = m[part]; !ok {
			return nil, unknownKey(path)
		}
	}
	if _, ok := node.(map[string]any); ok {
		return nil, fwerr.WithSuggestion(unknownKey(path), "the path names a section; add a field name")
	}
	return node, nil
}

func unknownKey(path string) error {
	return fwerr.WithDetails(fwerr.ErrUnknownConfigKey, map[string]string{"path": path})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing configuration")

	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}
