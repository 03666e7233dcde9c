//go:build debug

package main

import (
	"github.com/dupres/dupres/internal/errors"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

type profileOptions struct {
	memPath string
	cpuPath string
}

func registerProfiling(cmd *cobra.Command) {
	var opts profileOptions
	var prof interface{ Stop() }

	f := cmd.PersistentFlags()
	f.StringVar(&opts.memPath, "mem-profile", "", "write memory profile to `dir`")
	f.StringVar(&opts.cpuPath, "cpu-profile", "", "write cpu profile to `dir`")

	origPreRun := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if origPreRun != nil {
			if err := origPreRun(c, args); err != nil {
				return err
			}
		}

		if opts.memPath != "" && opts.cpuPath != "" {
			return errors.Fatal("only one profile (memory or CPU) may be activated at the same time")
		}

		switch {
		case opts.memPath != "":
			prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.MemProfile, profile.ProfilePath(opts.memPath))
		case opts.cpuPath != "":
			prof = profile.Start(profile.Quiet, profile.NoShutdownHook, profile.CPUProfile, profile.ProfilePath(opts.cpuPath))
		}
		return nil
	}

	origPostRun := cmd.PersistentPostRunE
	cmd.PersistentPostRunE = func(c *cobra.Command, args []string) error {
		if prof != nil {
			prof.Stop()
		}
		if origPostRun != nil {
			return origPostRun(c, args)
		}
		return nil
	}
}
