package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/locate"
	"github.com/dupres/dupres/internal/ui/termstatus"

	"github.com/spf13/pflag"
)

var version = "0.3.0-dev (compiled manually)"

// TimeFormat is the format used for all timestamps printed by dupres.
const TimeFormat = "2006-01-02 15:04:05"

// GlobalOptions hold all global options for dupres.
type GlobalOptions struct {
	BackupDir   string
	Concurrency int
	Quiet       bool
	Verbose     int
	JSON        bool

	stdout io.Writer
	stderr io.Writer
	term   *termstatus.Terminal

	// verbosity is set as follows:
	//  0 means: don't print any messages except errors, this is used when --quiet is specified
	//  1 is the default: print essential messages
	//  2 means: print more messages, report minor things, this is used when --verbose is specified
	//  3 means: print very detailed debug messages, this is used when --verbose=2 is specified
	verbosity uint
}

func (opts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.BackupDir, "backup-dir", "b", "", "`directory` holding the backup set (default: $DUPRES_BACKUP_DIR)")
	f.IntVar(&opts.Concurrency, "concurrency", 0, "number of files restored in parallel (default: $DUPRES_CONCURRENCY or the number of CPUs)")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "do not output comprehensive progress report")
	// use empty parameter name as `-v, --verbose n` instead of the correct `--verbose=n` is confusing
	f.CountVarP(&opts.Verbose, "verbose", "v", "be verbose (specify multiple times or a level using --verbose=n``, max level/times is 2)")
	f.BoolVar(&opts.JSON, "json", false, "set output mode to JSON for commands that support it")

	opts.BackupDir = os.Getenv("DUPRES_BACKUP_DIR")
	// parse concurrency from env, on error the default value will be used
	concurrency, _ := strconv.ParseUint(os.Getenv("DUPRES_CONCURRENCY"), 10, 16)
	opts.Concurrency = int(concurrency)
}

func (opts *GlobalOptions) PreRun() error {
	// set verbosity, default is one
	opts.verbosity = 1
	if opts.Quiet && opts.Verbose > 0 {
		return errors.Fatal("--quiet and --verbose cannot be specified at the same time")
	}

	switch {
	case opts.Verbose >= 2:
		opts.verbosity = 3
	case opts.Verbose > 0:
		opts.verbosity = 2
	case opts.Quiet:
		opts.verbosity = 0
	}

	if opts.Concurrency < 0 {
		return errors.Fatalf("invalid concurrency %d", opts.Concurrency)
	}
	return nil
}

var globalOptions = GlobalOptions{
	stdout: os.Stdout,
	stderr: os.Stderr,
}

// scanBackupDir scans the backup directory named by the options.
func scanBackupDir(opts GlobalOptions) (*locate.Set, error) {
	if opts.BackupDir == "" {
		return nil, errors.Fatal("please specify the backup directory (-b or $DUPRES_BACKUP_DIR)")
	}
	set, err := locate.Scan(opts.BackupDir)
	if err != nil {
		return nil, errors.Fatalf("%v", err)
	}
	return set, nil
}

// Printf writes the message to the configured stdout stream.
func Printf(format string, args ...interface{}) {
	if globalOptions.term != nil {
		globalOptions.term.Print(fmt.Sprintf(format, args...))
		return
	}
	_, err := fmt.Fprintf(globalOptions.stdout, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stdout: %v\n", err)
	}
}

// Verbosef calls Printf to write the message when the verbose flag is set.
func Verbosef(format string, args ...interface{}) {
	if globalOptions.verbosity >= 2 {
		Printf(format, args...)
	}
}

// Warnf writes the message to the configured stderr stream.
func Warnf(format string, args ...interface{}) {
	if globalOptions.term != nil {
		globalOptions.term.Error(fmt.Sprintf(format, args...))
		return
	}
	_, err := fmt.Fprintf(globalOptions.stderr, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stderr: %v\n", err)
	}
}
