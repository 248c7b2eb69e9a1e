package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/output"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg *config.Config
	Log config.LogWriter
	Fmt *output.Formatter
}

type cmdContextKey struct{}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(c *config.Config, l *config.Logger, f *output.Formatter) *CommandContext {
	return &CommandContext{Cfg: c, Log: l, Fmt: f}
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, falling back to
// one built from the package globals.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(cmdContextKey{}).(*CommandContext); ok && cc != nil {
			return cc
		}
	}
	return NewCommandContext(cfg, logger, formatter)
}

// Output returns a formatter that writes to the command's output stream in
// the configured format.
func (c *CommandContext) Output(cmd *cobra.Command) *output.Formatter {
	format := output.FormatText
	if c.Fmt != nil {
		format = c.Fmt.Format()
	}
	return output.NewFormatter(format, cmd.OutOrStdout())
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}
