package cgroup

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Cgroup represents one background job's Linux cgroup.
type Cgroup struct {
	// ID is the cgroup's unique identifier.
	ID uuid.UUID
	// Memory is the "memory.high" bytes limit. Zero means no limit.
	Memory uint64
	// CPUs is the "cpu.max" limit, in fractional CPUs. Zero means no limit.
	CPUs float32

	service Service
	path    string
}

// create creates the cgroup directory and enables/applies its controllers.
func (c Cgroup) create() error {
	if err := os.Mkdir(c.path, fileMode); err != nil {
		return fmt.Errorf("create cgroup: %w", err)
	}

	var controllers []controller
	if c.Memory > 0 {
		controllers = append(controllers, newMemoryController(c, c.Memory))
	}
	if c.CPUs > 0 {
		controllers = append(controllers, newCPUController(c, c.CPUs))
	}

	for _, ctl := range controllers {
		if err := ctl.enable(); err != nil {
			return fmt.Errorf("enable controller: %w", err)
		}
		if err := ctl.apply(); err != nil {
			return fmt.Errorf("apply controller: %w", err)
		}
	}
	return nil
}

// placePID adds pid to the cgroup via a leaf sub-cgroup, matching cgroups
// v2's "no internal processes" rule once controllers are enabled on a
// non-leaf node.
func (c Cgroup) placePID(pid int) error {
	leaf := uuid.New().String()
	leafPath := filepath.Join(c.path, leaf)
	if err := os.Mkdir(leafPath, fileMode); err != nil {
		return fmt.Errorf("create cgroup leaf: %w", err)
	}

	file := filepath.Join(leafPath, cgroupProcs)
	if err := os.WriteFile(file, []byte(strconv.Itoa(pid)), fileMode); err != nil {
		return fmt.Errorf("write cgroup pid: %w", err)
	}
	return nil
}

// remove evicts every pid from the cgroup back to the root cgroup, removes
// its leaves, and removes the cgroup directory itself.
func (c Cgroup) remove() error {
	pids, err := c.readPids()
	if err != nil {
		return err
	}
	if err := c.service.placeInRootCgroup(pids); err != nil {
		return err
	}
	if err := c.removeLeaves(); err != nil {
		return err
	}
	if err := unix.Rmdir(c.path); err != nil {
		return fmt.Errorf("remove cgroup: %w", err)
	}
	return nil
}

func (c Cgroup) readPids() ([]int, error) {
	var pids []int
	if err := filepath.WalkDir(c.path, func(walked string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Errorf("reading cgroup pids: %s", err)
			return nil
		}
		if !d.Type().IsRegular() || d.Name() != cgroupProcs {
			return nil
		}

		parts := strings.Split(walked, c.path)
		if len(parts) != 2 {
			return nil
		}
		leafPath := parts[1]
		parts = strings.Split(leafPath, string(filepath.Separator))
		if len(parts) != 3 {
			return nil
		}

		leafPids, err := readLeafPids(walked)
		if err != nil {
			logger.Errorf("reading leaf pids; path: %v, error: %v", walked, err)
		}
		pids = append(pids, leafPids...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk cgroup leaf cgroup.procs: %w", err)
	}
	return pids, nil
}

func (c Cgroup) removeLeaves() error {
	var leaves []uuid.UUID
	if err := filepath.WalkDir(c.path, func(walked string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Errorf("reading cgroup leaves: %v", err)
			return nil
		}
		if !d.Type().IsRegular() || d.Name() != cgroupProcs {
			return nil
		}

		parts := strings.Split(walked, c.path)
		if len(parts) != 2 {
			return nil
		}
		leafPath := parts[1]
		parts = strings.Split(leafPath, string(filepath.Separator))
		if len(parts) != 3 {
			return nil
		}

		id, err := uuid.Parse(parts[1])
		if err != nil {
			logger.Errorf("non-uuid dir; dir: %s", parts[1])
			return nil
		}
		leaves = append(leaves, id)
		return nil
	}); err != nil {
		return fmt.Errorf("walk cgroup leaves: %w", err)
	}

	for _, leaf := range leaves {
		p := filepath.Join(c.path, leaf.String())
		if err := unix.Rmdir(p); err != nil {
			return fmt.Errorf("rm leaf cgroup; path: %s, error: %v", p, err)
		}
	}
	return nil
}

func readLeafPids(path string) ([]int, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read leaf cgroup pids: %w", err)
	}
	defer fd.Close()

	var pids []int
	procs := bufio.NewScanner(fd)
	for procs.Scan() {
		pid, err := strconv.Atoi(procs.Text())
		if err != nil {
			return nil, fmt.Errorf("scan leaf cgroup.procs pids atoi: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := procs.Err(); err != nil {
		return nil, fmt.Errorf("scan leaf cgroup.procs pids: %w", err)
	}
	return pids, nil
}

// cgroupProcs is the name of the file that contains all processes within a
// cgroup.
const cgroupProcs = "cgroup.procs"
