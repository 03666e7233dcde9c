package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
)

func init() {
	// don't import `go.uber.org/automaxprocs` to disable the log output
	_, _ = maxprocs.Set()
}

// ErrPartialRestore is returned when some files could not be restored.
var ErrPartialRestore = errors.New("at least one file could not be restored")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dupres",
		Short: "Restore files from a deduplicated backup set",
		Long: `
dupres restores files from a local copy of a deduplicated backup set made of
dlist, dindex and dblock zip containers, without the application that wrote it.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return globalOptions.PreRun()
		},
	}

	globalOptions.AddFlags(cmd.PersistentFlags())
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newRestoreCommand(),
		newVersionsCommand(),
		newLsCommand(),
		newVersionCommand(),
	)

	registerProfiling(cmd)

	return cmd
}

func printExitError(code int, message string) {
	if globalOptions.JSON {
		type jsonExitError struct {
			MessageType string `json:"message_type"` // exit_error
			Code        int    `json:"code"`
			Message     string `json:"message"`
		}

		err := json.NewEncoder(globalOptions.stderr).Encode(jsonExitError{
			MessageType: "exit_error",
			Code:        code,
			Message:     message,
		})
		if err != nil {
			Warnf("JSON encode failed: %v\n", err)
		}
		return
	}

	_, _ = fmt.Fprintf(globalOptions.stderr, "%v\n", message)
}

func main() {
	// libraries which log are shown only if an error occurs
	logBuffer := bytes.NewBuffer(nil)
	log.SetOutput(logBuffer)

	debug.Log("main %#v", os.Args)
	debug.Log("dupres %s compiled with %v on %v/%v",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	ctx := createGlobalContext()
	err := newRootCommand().ExecuteContext(ctx)
	if err == nil {
		err = ctx.Err()
	}

	var exitMessage string
	switch {
	case err == ErrPartialRestore:
		exitMessage = fmt.Sprintf("Warning: %v", err)
	case errors.IsFatal(err):
		exitMessage = err.Error()
	case errors.Is(err, context.Canceled):
		exitMessage = "interrupted"
	case err != nil:
		exitMessage = fmt.Sprintf("%+v", err)

		if logBuffer.Len() > 0 {
			exitMessage += "also, the following messages were logged by a library:\n"
			sc := bufio.NewScanner(logBuffer)
			for sc.Scan() {
				exitMessage += fmt.Sprintln(sc.Text())
			}
		}
	}

	var exitCode int
	switch {
	case err == nil:
		exitCode = 0
	case err == ErrPartialRestore:
		exitCode = 3
	case errors.Is(err, context.Canceled):
		exitCode = 130
	default:
		exitCode = 1
	}

	if exitCode != 0 {
		printExitError(exitCode, exitMessage)
	}
	Exit(exitCode)
}
