package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/inletlabs/inlet/cli/render"
	"github.com/inletlabs/inlet/types"
)

// VersionResponse is the response for the version command.
// Reports the canonical project version (lockstep across all components).
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// TableHeader implements render.Tabular.
func (v VersionResponse) TableHeader() []string { return []string{"VERSION", "COMMIT"} }

// TableRows implements render.Tabular.
func (v VersionResponse) TableRows() [][]string {
	return [][]string{{v.Version, v.Commit}}
}

// VersionCommand returns the version command.
// It performs no network or store access.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		resp := VersionResponse{
			Version: types.Version,
			Commit:  commit,
		}

		return r.Render(resp)
	}
}
