package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/dupres/dupres/internal/locate"
)

func newVersionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the backup versions",
		Long: `
The "versions" command lists the backup versions found in the backup directory,
newest first. The number in the first column can be passed to --version.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersions(cmd.Context(), globalOptions)
		},
	}
	return cmd
}

type versionJSON struct {
	Number int        `json:"number"`
	ID     string     `json:"id"`
	Time   *time.Time `json:"time,omitempty"`
	Name   string     `json:"name"`
}

func runVersions(_ context.Context, gopts GlobalOptions) error {
	set, err := scanBackupDir(gopts)
	if err != nil {
		return err
	}

	versions := set.Versions()
	if gopts.JSON {
		return printVersionsJSON(versions)
	}

	if len(versions) == 0 {
		Printf("no versions found in %v\n", set.Dir)
		return nil
	}

	Printf("%3s  %-20s  %-19s  %s\n", "#", "ID", "Time", "Name")
	for i, v := range versions {
		t := ""
		if !v.Time.IsZero() {
			t = v.Time.Local().Format(TimeFormat)
		}
		Printf("%3d  %-20s  %-19s  %s\n", i, v.ID(), t, v.Name)
	}
	Verbosef("%d versions, %d index files, %d volumes\n", len(versions), len(set.Indexes()), set.Volumes())
	return nil
}

func printVersionsJSON(versions []locate.Version) error {
	out := make([]versionJSON, 0, len(versions))
	for i, v := range versions {
		vj := versionJSON{Number: i, ID: v.ID(), Name: v.Name}
		if !v.Time.IsZero() {
			t := v.Time
			vj.Time = &t
		}
		out = append(out, vj)
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return err
	}
	Printf("%s\n", buf)
	return nil
}
