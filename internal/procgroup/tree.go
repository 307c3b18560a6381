package procgroup

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Descendants returns the pids of every process below pid, parents before
// children. It works from a single snapshot of the process table, so
// processes spawned while it runs may be missed.
func Descendants(pid int) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	children := make(map[int32][]int32)
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], p.Pid)
	}

	var out []int32
	queue := []int32{int32(pid)}
	seen := map[int32]bool{int32(pid): true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

// KillTree forcibly kills pid and all of its descendants, deepest first so
// a dying parent cannot respawn a worker.
func KillTree(pid int) error {
	exists, err := process.PidExists(int32(pid))
	if err == nil && !exists {
		return ErrProcessNotFound
	}

	desc, err := Descendants(pid)
	if err != nil {
		return err
	}

	var errs []error
	for i := len(desc) - 1; i >= 0; i-- {
		if err := killPid(desc[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := killPid(int32(pid)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func killPid(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		// Gone between the snapshot and now.
		return nil
	}
	if err := p.Kill(); err != nil {
		if running, rerr := p.IsRunning(); rerr == nil && !running {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}
