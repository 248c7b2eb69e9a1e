package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // help text is generated once per process
var helpOnce sync.Once

// prepareHelp appends subcommand lists to every parent command's help.
func prepareHelp() {
	helpOnce.Do(func() {
		walkCommands(rootCmd, enrichParentLong)
	})
}

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong appends the available subcommands to a parent command's
// Long description. The root command lists its own.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() || !cmd.HasParent() {
		return
	}

	var sb strings.Builder
	sb.WriteString(cmd.Long)
	sb.WriteString("\n\nSubcommands:\n")

	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			_, _ = fmt.Fprintf(&sb, "  %-16s %s\n", sub.Name(), sub.Short)
		}
	}

	cmd.Long = sb.String()
}
