// Package debug writes a developer log. It is disabled unless DEBUG_LOG names
// a file or DEBUG_FUNCS / DEBUG_FILES select call sites to print on stderr.
//
//	DEBUG_LOG=/tmp/dupres.log dupres restore ...
//	DEBUG_FUNCS=volume.* DEBUG_FILES=-restorer.go:* dupres restore ...
package debug

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

var opts struct {
	isEnabled bool
	logger    *log.Logger
	funcs     map[string]bool
	files     map[string]bool
}

// initialize before any package init() runs so that early Log calls work
var _ = initDebug()

func initDebug() bool {
	if name := os.Getenv("DEBUG_LOG"); name != "" {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unable to open debug log file: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "debug log file %v\n", name)
		opts.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	}

	opts.funcs = parseFilter("DEBUG_FUNCS", func(s string) string { return s })
	opts.files = parseFilter("DEBUG_FILES", padFile)

	opts.isEnabled = opts.logger != nil || len(opts.funcs) > 0 || len(opts.files) > 0
	return opts.isEnabled
}

// parseFilter reads a comma separated list of glob patterns. A leading '-'
// disables matching call sites, '+' (or nothing) enables them.
func parseFilter(envname string, pad func(string) string) map[string]bool {
	filter := make(map[string]bool)

	env := os.Getenv(envname)
	if env == "" {
		return filter
	}

	for _, item := range strings.Split(env, ",") {
		pattern := pad(strings.TrimSpace(item))
		if pattern == "" {
			continue
		}

		enabled := true
		switch pattern[0] {
		case '-':
			enabled = false
			pattern = pattern[1:]
		case '+':
			pattern = pattern[1:]
		}

		if _, err := path.Match(pattern, ""); err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid pattern %q: %v\n", pattern, err)
			os.Exit(5)
		}

		filter[pattern] = enabled
	}

	return filter
}

// padFile turns "foo.go" into "*/foo.go:*".
func padFile(s string) string {
	if s == "all" || s == "" {
		return s
	}
	if !strings.Contains(s, "/") {
		s = "*/" + s
	}
	if !strings.Contains(s, ":") {
		s += ":*"
	}
	return s
}

func match(filter map[string]bool, key string) bool {
	if v, ok := filter[key]; ok {
		return v
	}

	for pattern, v := range filter {
		if ok, _ := path.Match(pattern, key); ok {
			return v
		}
	}

	return filter["all"]
}

// caller returns the function name and "dir/file:line" of the caller of Log.
func caller() (fn, pos string) {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "", ""
	}

	name := ""
	if f := runtime.FuncForPC(pc); f != nil {
		name = path.Base(f.Name())
	}

	return name, fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
}

// Log prints a message to the debug log (if debug is enabled).
func Log(f string, args ...interface{}) {
	if !opts.isEnabled {
		return
	}

	fn, pos := caller()

	if !strings.HasSuffix(f, "\n") {
		f += "\n"
	}

	type shortener interface {
		Str() string
	}
	for i, item := range args {
		if s, ok := item.(shortener); ok {
			args[i] = s.Str()
		}
	}

	format := fmt.Sprintf("%s\t%s\t%s", pos, fn, f)

	if opts.logger != nil {
		opts.logger.Printf(format, args...)
	}

	if match(opts.files, pos) || match(opts.funcs, fn) {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
