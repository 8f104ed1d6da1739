// Package cli defines the yashd CLI.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tjper/yashd/internal/validator"
	"github.com/tjper/yashd/internal/yashd/dispatcher"
	"github.com/tjper/yashd/internal/yashd/reexec"
)

var (
	portFlag       = flag.Int("port", dispatcher.DefaultPort, "port to serve yashd on")
	verboseFlag    = flag.Bool("v", false, "log at verbose level")
	foregroundFlag = flag.Bool("foreground", false, "do not detach from the controlling terminal")
	logFlag        = flag.String("log", defaultLogPath, "path to the daemon's log file")
	pidFlag        = flag.String("pid", defaultPidPath, "path to the daemon's PID file")
	cpuLimitFlag   = flag.Float64("cpu-limit", 0, "cap background jobs to this many CPUs (0 disables)")
	memLimitFlag   = flag.Uint64("mem-limit", 0, "cap background jobs to this many bytes of memory (0 disables)")
)

const (
	defaultLogPath = "/tmp/yashd.log"
	defaultPidPath = "/tmp/yashd.pid"
)

// The short -p and long --verbose spellings share storage with -port and -v.
func init() {
	flag.IntVar(portFlag, "p", dispatcher.DefaultPort, "port to serve yashd on")
	flag.BoolVar(verboseFlag, "verbose", false, "log at verbose level")
}

// Exit codes, matching spec.md §6's daemon CLI contract.
const (
	ecSuccess = 0
	// ecBadArgument indicates a flag or subcommand was invalid.
	ecBadArgument = 2
	// ecDaemonize indicates the daemonizer could not detach, lock its PID
	// file, or install its log watcher.
	ecDaemonize = 3
	// ecSocket indicates the listener could not bind the configured port.
	ecSocket = 4
	// ecThread indicates a servant or job thread could not be spawned, or
	// (as used here) that the optional cgroup service failed to set up.
	ecThread = 5
	// ecCommandSyntax indicates the reexec subcommand failed before
	// reaching its image-replacing exec call.
	ecCommandSyntax = 6
)

// Run is the entrypoint of the yashd CLI.
func Run() int {
	flag.Parse()

	if len(os.Args) >= 2 && os.Args[len(os.Args)-1] == reexec.Subcommand {
		return runReexec()
	}

	v := validator.New()
	v.Assert(*portFlag >= dispatcher.MinPort && *portFlag <= dispatcher.MaxPort, "port out of range")
	v.Assert(*cpuLimitFlag >= 0, "cpu-limit must not be negative")
	if err := v.Err(); err != nil {
		return help(err.Error())
	}

	if flag.NArg() > 0 {
		return help(fmt.Sprintf("Unrecognized argument %q.", flag.Arg(0)))
	}

	return runServe()
}

// help outputs a general overview of the yashd executable to the user. The
// text argument may be used to add a detailed help message.
func help(text string) int {
	var b strings.Builder
	if text != "" {
		b.WriteString(fmt.Sprintf("\nNotice: %s", text))
	}

	b.WriteString(
		`

yashd serves a line-oriented remote shell: clients connect over TCP, submit
commands, and receive job control and output as a single interleaved byte
stream.

Usage:
  yashd [flags]

Flags:
  -port, -p     port to serve yashd on
  -v, -verbose  log at verbose level
  -foreground   do not detach from the controlling terminal
  -log          path to the daemon's log file
  -pid          path to the daemon's PID file
  -cpu-limit    cap background jobs to this many CPUs (0 disables)
  -mem-limit    cap background jobs to this many bytes of memory (0 disables)
`)
	fmt.Fprint(os.Stdout, b.String())
	return ecBadArgument
}
