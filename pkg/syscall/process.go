package syscall

import (
	"errors"
	"math"

	"tcore/pkg/klog"
	"tcore/pkg/process"
)

func sysExit(t *process.Thread, a Args) int64 {
	t.Exit(int(int32(a[0])))
	panic("exit returned")
}

func sysYield(t *process.Thread, a Args) int64 {
	t.Yield()
	return 0
}

func sysGetpid(t *process.Thread, a Args) int64 {
	return int64(t.Process().Pid())
}

func sysSetPriority(t *process.Thread, a Args) int64 {
	prio := int64(a[0])
	if prio > math.MaxInt32 {
		return Fail
	}
	if err := t.SetPriority(int(prio)); err != nil {
		return Fail
	}
	return prio
}

func sysFork(t *process.Thread, a Args) int64 {
	child, err := t.Fork()
	if err != nil {
		klog.Debugf("fork: %v", err)
		return Fail
	}
	return int64(child.Pid())
}

func sysExec(t *process.Thread, a Args) int64 {
	path, err := t.Process().Memory().TranslatedStr(a[0])
	if err != nil {
		return Fail
	}
	if err := t.Exec(path); err != nil {
		klog.Debugf("exec %q: %v", path, err)
	}
	return Fail
}

func sysSpawn(t *process.Thread, a Args) int64 {
	path, err := t.Process().Memory().TranslatedStr(a[0])
	if err != nil {
		return Fail
	}
	child, err := t.Spawn(path)
	if err != nil {
		klog.Debugf("spawn %q: %v", path, err)
		return Fail
	}
	return int64(child.Pid())
}

func sysWaitpid(t *process.Thread, a Args) int64 {
	pid, ptr := int(int64(a[0])), a[1]
	mem := t.Process().Memory()
	if ptr != 0 {
		if _, err := mem.TranslatedRefMut(ptr, 4); err != nil {
			return Fail
		}
	}
	found, code, err := t.Waitpid(pid)
	switch {
	case errors.Is(err, process.ErrNotExited):
		return NotReady
	case err != nil:
		return Fail
	}
	if ptr != 0 {
		if err := mem.WriteValue(ptr, int32(code)); err != nil {
			return Fail
		}
	}
	return int64(found)
}

func sysSbrk(t *process.Thread, a Args) int64 {
	old, err := t.Sbrk(int64(a[0]))
	if err != nil {
		return Fail
	}
	return int64(old)
}

func sysMmap(t *process.Thread, a Args) int64 {
	return status(t.Mmap(a[0], a[1], a[2]))
}

func sysMunmap(t *process.Thread, a Args) int64 {
	return status(t.Munmap(a[0], a[1]))
}

func sysWrite(t *process.Thread, a Args) int64 {
	fd, ptr, n := a[0], a[1], a[2]
	if fd != 1 && fd != 2 {
		return Fail
	}
	bufs, err := t.Process().Memory().TranslatedByteBuffer(ptr, int(n))
	if err != nil {
		return Fail
	}
	out := t.Process().Manager().Console()
	total := 0
	for _, b := range bufs {
		w, err := out.Write(b)
		total += w
		if err != nil {
			return Fail
		}
	}
	return int64(total)
}
