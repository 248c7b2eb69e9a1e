package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary. Fields are set at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

//nolint:gochecknoglobals // set once from main
var buildInfo BuildInfo

// SetBuildInfo records version details for the version command.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
}

func formatVersion(info BuildInfo) string {
	version, commit, date := info.Version, info.Commit, info.Date
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := GetCmdContext(cmd).Output(cmd)
		if f.IsJSON() {
			return f.Print(struct {
				BuildInfo
				GoVersion string `json:"go_version"`
			}{buildInfo, runtime.Version()})
		}
		return f.Printf("fedwallet %s %s/%s\n", formatVersion(buildInfo), runtime.GOOS, runtime.GOARCH)
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
