package apps

import (
	"bytes"
	"fmt"

	"tcore/pkg/loader"
	"tcore/pkg/process"
	"tcore/pkg/syscall"
	"tcore/pkg/user"
)

// getdata checks that the loader placed the data segment and zeroed the
// BSS after it.
func getdata(t *process.Thread) int {
	b, ok := user.Load(t, loader.DataBase, len(dataMessage))
	if !ok || string(b) != dataMessage {
		return 1
	}
	bss, ok := user.Load(t, loader.DataBase+uint64(len(dataMessage)), 64)
	if !ok || !bytes.Equal(bss, make([]byte, 64)) {
		return 2
	}
	return 0
}

func taskinfo(t *process.Thread) int {
	const calls = 3
	for i := 0; i < calls; i++ {
		user.Getpid(t)
	}
	user.Yield(t)
	info, ret := user.TaskInfo(t)
	if ret != 0 {
		return 1
	}
	if info.Status != uint32(process.StatusRunning) {
		return 2
	}
	if info.SyscallTimes[syscall.SysGetpid] != calls {
		return 3
	}
	// The call being made is counted too.
	if info.SyscallTimes[syscall.SysTaskInfo] != 1 || info.SyscallTimes[syscall.SysYield] != 1 {
		return 4
	}
	return 0
}

func sleep(t *process.Thread) int {
	start := user.GetTimeMs(t)
	if user.Sleep(t, 30) != 0 {
		return 1
	}
	if user.GetTimeMs(t)-start < 30 {
		return 2
	}
	return 0
}

func sbrk(t *process.Thread) int {
	const n = 2 * 4096
	old := user.Sbrk(t, n)
	if old < 0 {
		return 1
	}
	top := uint64(old) + n - 8
	if !user.Store(t, top, []byte("brkbrk!!")) {
		return 2
	}
	if user.Sbrk(t, -n) != old+n {
		return 3
	}
	if _, ok := user.Load(t, top, 8); ok {
		return 4
	}
	if user.Sbrk(t, -(n + 1<<30)) != syscall.Fail {
		return 5
	}
	return 0
}

func mmap(t *process.Thread) int {
	const start, length = 0x1000_0000, 4096
	if user.Mmap(t, start, length, 0b011) != 0 {
		return 1
	}
	if !user.Store(t, start, []byte{0xAA}) {
		return 2
	}
	if user.Mmap(t, start, length, 0b011) != syscall.Fail {
		return 3
	}
	if user.Mmap(t, start+length, length, 0) != syscall.Fail {
		return 4
	}
	if user.Munmap(t, start, length) != 0 {
		return 5
	}
	if _, ok := user.Load(t, start, 1); ok {
		return 6
	}
	if user.Munmap(t, start, length) != syscall.Fail {
		return 7
	}
	return 0
}

// forktest forks children that each exit with their own code and checks
// that the parent reaps all of them.
func forktest(t *process.Thread) int {
	const n = 8
	pids := make(map[int64]int32, n)
	for i := 0; i < n; i++ {
		code := int32(100 + i)
		pid := user.Fork(t, func(c *process.Thread) int {
			return int(code)
		})
		if pid <= 0 {
			return 1
		}
		pids[pid] = code
	}
	for range n {
		pid, code := user.Wait(t)
		want, ok := pids[pid]
		if !ok || code != want {
			return 2
		}
		delete(pids, pid)
	}
	if pid, _ := user.Wait(t); pid != syscall.Fail {
		return 3
	}
	return 0
}

// execTest forks a child that execs hello after a failed exec of a missing
// program.
func execTest(t *process.Thread) int {
	pid := user.Fork(t, func(c *process.Thread) int {
		if user.Exec(c, "no_such_program") != syscall.Fail {
			return 10
		}
		user.Exec(c, "hello")
		return 11
	})
	if pid <= 0 {
		return 1
	}
	_, code := user.Waitpid(t, pid)
	return int(code)
}

// stride forks one child per priority. Each child counts how many times it
// is scheduled within a fixed window.
func stride(t *process.Thread) int {
	const window = 200
	prios := []int64{5, 6, 7, 8, 9, 10}
	pids := make([]int64, len(prios))
	for i, prio := range prios {
		pids[i] = user.Fork(t, func(c *process.Thread) int {
			user.SetPriority(c, prio)
			end := user.GetTimeMs(c) + window
			count := 0
			for user.GetTimeMs(c) < end {
				count++
				user.Yield(c)
			}
			return count
		})
		if pids[i] <= 0 {
			return 1
		}
	}
	for i, pid := range pids {
		_, count := user.Waitpid(t, pid)
		user.Print(t, fmt.Sprintf("priority %d: %d slices\n", prios[i], count))
		if count <= 0 {
			return 2
		}
	}
	return 0
}
