package cgroup

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/tjper/yashd/internal/errors"
)

// controller enables and applies one cgroup control.
type controller interface {
	enable() error
	apply() error
}

// newCPUController creates a cpuController instance.
func newCPUController(cgroup Cgroup, cpus float32) *cpuController {
	return &cpuController{baseController: baseController{name: cpu, cgroup: cgroup}, cpus: cpus}
}

// cpuController enables and applies the "cpu.max" control.
type cpuController struct {
	baseController
	cpus float32
}

func (c cpuController) apply() error {
	const period = 100000
	limit := c.cpus * period
	value := fmt.Sprintf("%f %d", limit, period)
	return errors.Wrap(c.baseController.apply(cpuMax, value))
}

// newMemoryController creates a memoryController instance.
func newMemoryController(cgroup Cgroup, limit uint64) *memoryController {
	return &memoryController{baseController: baseController{name: memory, cgroup: cgroup}, limit: limit}
}

// memoryController enables and applies the "memory.high" control.
type memoryController struct {
	baseController
	limit uint64
}

func (c memoryController) apply() error {
	value := strconv.FormatUint(c.limit, 10)
	return errors.Wrap(c.baseController.apply(memoryHigh, value))
}

// baseController owns controller logic shared by every controller
// implementation.
type baseController struct {
	name   string
	cgroup Cgroup
}

// enable enables a controller by writing to cgroup.subtree_control.
func (c baseController) enable() error {
	file := path.Join(c.cgroup.path, cgroupSubtreeControl)
	fd, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return errors.Wrap(err)
	}
	defer fd.Close()

	_, err = fd.WriteString(fmt.Sprintf("+%s\n", c.name))
	return errors.Wrap(err)
}

// apply sets the value for the specified control in the controller's
// cgroup.
func (c baseController) apply(control, value string) error {
	file := path.Join(c.cgroup.path, control)
	fd, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return errors.Wrap(err)
	}
	defer fd.Close()

	_, err = fd.WriteString(value)
	return errors.Wrap(err)
}

const (
	// cgroupSubtreeControl is the name of the file that contains all enabled
	// controllers within a cgroup.
	cgroupSubtreeControl = "cgroup.subtree_control"
	cpu                  = "cpu"
	memory               = "memory"
	memoryHigh           = "memory.high"
	cpuMax               = "cpu.max"
)
