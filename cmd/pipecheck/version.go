package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/pipecheck/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			line := "pipecheck " + info.Version
			if info.GoVersion != "" {
				line += " (" + info.GoVersion
				if info.Revision != "" {
					rev := info.Revision
					if len(rev) > 12 {
						rev = rev[:12]
					}
					line += ", " + rev
					if info.Modified {
						line += "-dirty"
					}
				}
				line += ")"
			}
			_, err := fmt.Fprintln(a.stdout, line)
			return err
		},
	}
}
