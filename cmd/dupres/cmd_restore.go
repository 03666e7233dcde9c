package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/restorer"
	"github.com/dupres/dupres/internal/ui"
	"github.com/dupres/dupres/internal/ui/termstatus"

	"github.com/spf13/cobra"
)

func newRestoreCommand() *cobra.Command {
	var opts RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore [flags]",
		Short: "Restore the files of a backup version",
		Long: `
The "restore" command reconstructs all files of a backup version in the target
directory. By default the newest version is restored, use --version to select
another one by its number (0 is the newest), its timestamp or its file name.

Files are written to a temporary name and moved into place once their size and
content hash were verified. Files which cannot be restored are reported and do
not stop the restore of the others.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 3 if some files could not be restored.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			term, cancel := setupTermstatus()
			defer cancel()
			return runRestore(cmd.Context(), opts, globalOptions, term)
		},
	}

	opts.AddFlags(cmd)
	return cmd
}

// RestoreOptions collects all options for the restore command.
type RestoreOptions struct {
	Target           string
	Version          string
	MaxOpenVolumes   int
	Encoding         encodingFlag
	VerifyOnly       bool
	KeepBackslashes  bool
	LimitRead        int
	PayloadCacheSize string
}

func (opts *RestoreOptions) AddFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&opts.Target, "target", "t", "", "`directory` to restore the files to")
	f.StringVar(&opts.Version, "version", "", "`version` to restore, a number, timestamp or file name (default: newest)")
	f.IntVar(&opts.MaxOpenVolumes, "max-open-volumes", 0, "maximum `number` of volumes kept open (default: 8)")
	f.Var(&opts.Encoding, "encoding", "block name encoding of the volumes, one of (auto|base64|hex)")
	f.BoolVar(&opts.VerifyOnly, "verify-only", false, "read and verify all data without writing anything")
	f.BoolVar(&opts.KeepBackslashes, "keep-backslashes", false, "do not treat backslashes in paths as separators")
	f.IntVar(&opts.LimitRead, "limit-read", 0, "limits reading volumes to a maximum `rate` in KiB/s (default: unlimited)")
	f.StringVar(&opts.PayloadCacheSize, "block-cache", "", "`size` of the cache of verified blocks, e.g. 64M (default: 32M)")
}

// encodingFlag is the --encoding flag, its zero value detects the encoding.
type encodingFlag struct {
	codec archive.NameCodec
}

func (e *encodingFlag) Set(s string) error {
	codec, err := archive.ParseEncoding(s)
	if err != nil {
		return err
	}
	e.codec = codec
	return nil
}

func (e *encodingFlag) String() string {
	if e.codec == nil {
		return "auto"
	}
	return e.codec.Name()
}

func (e *encodingFlag) Type() string {
	return "encoding"
}

func runRestore(ctx context.Context, opts RestoreOptions, gopts GlobalOptions, term *termstatus.Terminal) error {
	if opts.Target == "" && !opts.VerifyOnly {
		return errors.Fatal("please specify a directory to restore to (--target)")
	}
	if opts.LimitRead < 0 {
		return errors.Fatalf("invalid read limit %d", opts.LimitRead)
	}

	var cacheSize int64
	if opts.PayloadCacheSize != "" {
		var err error
		cacheSize, err = ui.ParseBytes(opts.PayloadCacheSize)
		if err != nil {
			return errors.Fatalf("invalid block cache size: %v", err)
		}
	}

	set, err := scanBackupDir(gopts)
	if err != nil {
		return err
	}
	v, err := set.Select(opts.Version)
	if err != nil {
		return errors.Fatalf("%v", err)
	}

	debug.Log("restore %v to %v", v.Name, opts.Target)
	if opts.VerifyOnly {
		Verbosef("verifying version %v from %v\n", v.ID(), set.Dir)
	} else {
		Verbosef("restoring version %v from %v to %v\n", v.ID(), set.Dir, opts.Target)
	}

	target := opts.Target
	if target == "" {
		// nothing is written in verify-only mode
		target = "."
	}

	progress := newRestoreProgress(gopts, term, opts.VerifyOnly)
	start := time.Now()
	rep, err := restorer.Run(ctx, restorer.Sources{
		Manifest: v.Path,
		Indexes:  set.Indexes(),
		Volumes:  set.VolumeFiles(),
		Locator:  set,
	}, target, restorer.Options{
		Concurrency:      gopts.Concurrency,
		MaxOpenVolumes:   opts.MaxOpenVolumes,
		Encoding:         opts.Encoding.codec,
		DryRun:           opts.VerifyOnly,
		KeepBackslashes:  opts.KeepBackslashes,
		ReadLimitKiB:     opts.LimitRead,
		PayloadCacheSize: int(cacheSize),
		Progress:         progress,
		IndexProgress:    newIndexTerminalProgress(gopts, term),
	})
	progress.Finish()
	if rep == nil {
		return err
	}

	for _, w := range rep.Warnings {
		Warnf("warning: %v\n", w)
	}

	if gopts.JSON {
		printReportJSON(rep)
	} else {
		st := rep.Volumes
		Verbosef("read %v at %v, %d volume opens (%d evictions), %d blocks reused\n",
			ui.FormatBytes(uint64(st.BytesRead)), ui.FormatRate(uint64(st.BytesRead), time.Since(start)),
			st.VolumesOpened, st.VolumesEvicted, st.CacheHits)
	}

	if err != nil {
		return err
	}
	if !rep.OK() {
		return ErrPartialRestore
	}
	return nil
}

func printReportJSON(rep *restorer.Report) {
	type jsonReport struct {
		MessageType string `json:"message_type"` // report
		*restorer.Report
	}

	buf, err := json.Marshal(jsonReport{MessageType: "report", Report: rep})
	if err != nil {
		Warnf("JSON encode failed: %v\n", err)
		return
	}
	Printf("%s\n", buf)
}
