package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/manifest"
	"github.com/dupres/dupres/internal/ui"
)

func newLsCommand() *cobra.Command {
	var opts LsOptions

	cmd := &cobra.Command{
		Use:   "ls [flags] [prefix...]",
		Short: "List the entries of a backup version",
		Long: `
The "ls" command lists the files, folders and symlinks of a backup version. By
default the newest version is listed, use --version to select another one.

Listings can optionally be filtered by path prefixes. Any positional arguments
are compared with the start of the paths as recorded by the backup.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd.Context(), opts, globalOptions, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Version, "version", "", "`version` to list, a number, timestamp or file name (default: newest)")
	f.BoolVarP(&opts.ListLong, "long", "l", false, "use a long listing format showing kind, mode, size and modification time")
	f.BoolVar(&opts.HumanReadable, "human-readable", false, "print sizes in human readable format")
	return cmd
}

// LsOptions collects all options for the ls command.
type LsOptions struct {
	Version       string
	ListLong      bool
	HumanReadable bool
}

func runLs(_ context.Context, opts LsOptions, gopts GlobalOptions, args []string) error {
	set, err := scanBackupDir(gopts)
	if err != nil {
		return err
	}
	v, err := set.Select(opts.Version)
	if err != nil {
		return errors.Fatalf("%v", err)
	}

	m, err := manifest.Read(v.Path)
	if err != nil {
		return err
	}

	var p lsPrinter
	if gopts.JSON {
		p = &jsonLsPrinter{enc: json.NewEncoder(gopts.stdout)}
	} else {
		p = &textLsPrinter{long: opts.ListLong, humanReadable: opts.HumanReadable}
	}

	if err := p.Version(v.ID(), m); err != nil {
		return err
	}
	for _, e := range m.Entries {
		if !matchPrefix(e.Path, args) {
			continue
		}
		if err := p.Entry(e); err != nil {
			return err
		}
	}
	return p.Close()
}

func matchPrefix(p string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

type lsPrinter interface {
	Version(id string, m *backup.Manifest) error
	Entry(e *backup.FileEntry) error
	Close() error
}

type jsonLsPrinter struct {
	enc *json.Encoder
}

func (p *jsonLsPrinter) Version(id string, m *backup.Manifest) error {
	type lsVersion struct {
		MessageType string       `json:"message_type"` // version
		ID          string       `json:"id"`
		Created     *time.Time   `json:"created,omitempty"`
		BlockSize   int64        `json:"block_size,omitempty"`
		AppVersion  string       `json:"app_version,omitempty"`
		Stats       backup.Stats `json:"stats"`
	}

	out := lsVersion{
		MessageType: "version",
		ID:          id,
		BlockSize:   m.BlockSize,
		AppVersion:  m.AppVersion,
		Stats:       m.Stats(),
	}
	if !m.Created.IsZero() {
		out.Created = &m.Created
	}
	return p.enc.Encode(out)
}

func (p *jsonLsPrinter) Entry(e *backup.FileEntry) error {
	type lsNode struct {
		MessageType string     `json:"message_type"` // node
		Path        string     `json:"path"`
		Kind        string     `json:"kind"`
		Size        *int64     `json:"size,omitempty"`
		Mode        *uint32    `json:"mode,omitempty"`
		ModTime     *time.Time `json:"mtime,omitempty"`
		Target      string     `json:"target,omitempty"`
		Hash        string     `json:"hash,omitempty"`
	}

	n := lsNode{
		MessageType: "node",
		Path:        e.Path,
		Kind:        e.Kind.String(),
		Target:      e.Target,
	}
	if e.Kind == backup.KindFile {
		size := e.Size
		n.Size = &size
		n.Hash = e.Hash.String()
	}
	if e.HasMode {
		mode := uint32(e.Mode.Perm())
		n.Mode = &mode
	}
	if !e.ModTime.IsZero() {
		mtime := e.ModTime
		n.ModTime = &mtime
	}
	return p.enc.Encode(n)
}

func (p *jsonLsPrinter) Close() error { return nil }

type textLsPrinter struct {
	long          bool
	humanReadable bool
}

func (p *textLsPrinter) Version(id string, m *backup.Manifest) error {
	st := m.Stats()
	Verbosef("version %s: %d files, %d folders, %d symlinks, %v\n",
		id, st.Files, st.Folders, st.Symlinks, ui.FormatBytes(uint64(st.Bytes)))
	return nil
}

func (p *textLsPrinter) Entry(e *backup.FileEntry) error {
	Printf("%s\n", formatEntry(e, p.long, p.humanReadable))
	return nil
}

func (p *textLsPrinter) Close() error { return nil }

// formatEntry returns the listing line of e.
func formatEntry(e *backup.FileEntry, long bool, human bool) string {
	name := e.Path
	if e.Kind == backup.KindSymlink {
		name += " -> " + e.Target
	}
	if !long {
		return name
	}

	mode := "?---------"
	if e.HasMode {
		mode = e.Mode.String()
	}
	switch e.Kind {
	case backup.KindFolder:
		mode = "d" + mode[1:]
	case backup.KindSymlink:
		mode = "L" + mode[1:]
	}

	size := "-"
	if e.Kind == backup.KindFile {
		if human {
			size = ui.FormatBytes(uint64(e.Size))
		} else {
			size = strconv.FormatInt(e.Size, 10)
		}
	}

	mtime := "-"
	if !e.ModTime.IsZero() {
		mtime = e.ModTime.Local().Format(TimeFormat)
	}

	return fmt.Sprintf("%s %12s %19s %s", mode, size, mtime, name)
}
