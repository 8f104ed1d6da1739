package reexec

import "syscall"

// unixExec is syscall.Exec, indirected so tests can stub image replacement.
var unixExec = syscall.Exec
