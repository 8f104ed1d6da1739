package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/tjper/yashd/internal/log"
	"github.com/tjper/yashd/internal/yashd/cgroup"
	"github.com/tjper/yashd/internal/yashd/daemon"
	"github.com/tjper/yashd/internal/yashd/dispatcher"
	"github.com/tjper/yashd/internal/yashd/launcher"
	"github.com/tjper/yashd/internal/yashd/registry"
	"github.com/tjper/yashd/internal/yashd/supervisor"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "cli")

func runServe() int {
	log.SetVerbose(*verboseFlag)

	if !*foregroundFlag {
		detached, err := daemon.Detach(*logFlag)
		if err != nil {
			logger.Errorf("detach; error: %s", err)
			return ecDaemonize
		}
		if detached {
			return ecSuccess
		}
	}

	d, err := daemon.Start(*pidFlag, *logFlag)
	if err != nil {
		logger.Errorf("daemon start; error: %s", err)
		return ecDaemonize
	}
	defer d.Shutdown()

	limits := cgroup.Limits{Memory: *memLimitFlag, CPUs: float32(*cpuLimitFlag)}

	var cgroups *cgroup.Service
	if limits.Enabled() {
		cgroups, err = cgroup.NewService()
		if err != nil {
			logger.Errorf("cgroup service setup; error: %s", err)
			return ecThread
		}
		defer cgroups.Cleanup()
	}

	self, err := os.Executable()
	if err != nil {
		logger.Errorf("resolve executable; error: %s", err)
		return ecThread
	}

	reg := registry.New()
	l := launcher.New(self, cgroups, limits)
	sup := supervisor.New(cgroups)

	lis, err := dispatcher.Listen(*portFlag)
	if err != nil {
		logger.Errorf("listen on port %d; error: %s", *portFlag, err)
		return ecSocket
	}
	defer lis.Close()
	logger.Infof("listening; port: %d", *portFlag)

	disp := dispatcher.New(lis, reg, l, sup)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Infof("shutting down; signal: %s", s)
		reg.ShutdownAll()
		lis.Close()
	}()

	if err := disp.Run(); err != nil {
		logger.Errorf("serve; error: %s", err)
		return ecSocket
	}

	return ecSuccess
}
