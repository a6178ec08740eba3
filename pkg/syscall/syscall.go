// Package syscall decodes system calls made by user code and forwards them
// to the process layer.
//
// Every call takes up to three word-sized arguments and returns one signed
// word. User pointers are translated through the caller's address space, and
// kernel errors are folded into the negative sentinels below.
package syscall

import (
	"tcore/pkg/klog"
	"tcore/pkg/process"
)

// Syscall numbers.
const (
	SysWrite                = 64
	SysExit                 = 93
	SysSleep                = 101
	SysYield                = 124
	SysSetPriority          = 140
	SysGetTime              = 169
	SysGetpid               = 172
	SysSbrk                 = 214
	SysMunmap               = 215
	SysFork                 = 220
	SysExec                 = 221
	SysMmap                 = 222
	SysWaitpid              = 260
	SysSpawn                = 400
	SysTaskInfo             = 410
	SysEnableDeadlockDetect = 469
	SysThreadCreate         = 1000
	SysGettid               = 1001
	SysWaittid              = 1002
	SysMutexCreate          = 1010
	SysMutexLock            = 1011
	SysMutexUnlock          = 1012
	SysSemaphoreCreate      = 1020
	SysSemaphoreUp          = 1021
	SysSemaphoreDown        = 1022
	SysCondvarCreate        = 1030
	SysCondvarSignal        = 1031
	SysCondvarWait          = 1032
)

// Return sentinels.
const (
	// Fail is the generic failure return.
	Fail int64 = -1
	// NotReady means the awaited child or thread has not exited yet.
	NotReady int64 = -2
	// Deadlock means the request was refused by the safety check.
	Deadlock int64 = -0xDEAD
)

// Args are the raw argument registers of a call.
type Args [3]uint64

type handler struct {
	name string
	fn   func(t *process.Thread, a Args) int64
}

var table = map[int]handler{
	SysWrite:                {"write", sysWrite},
	SysExit:                 {"exit", sysExit},
	SysSleep:                {"sleep", sysSleep},
	SysYield:                {"yield", sysYield},
	SysSetPriority:          {"set_priority", sysSetPriority},
	SysGetTime:              {"get_time", sysGetTime},
	SysGetpid:               {"getpid", sysGetpid},
	SysSbrk:                 {"sbrk", sysSbrk},
	SysMunmap:               {"munmap", sysMunmap},
	SysFork:                 {"fork", sysFork},
	SysExec:                 {"exec", sysExec},
	SysMmap:                 {"mmap", sysMmap},
	SysWaitpid:              {"waitpid", sysWaitpid},
	SysSpawn:                {"spawn", sysSpawn},
	SysTaskInfo:             {"task_info", sysTaskInfo},
	SysEnableDeadlockDetect: {"enable_deadlock_detect", sysEnableDeadlockDetect},
	SysThreadCreate:         {"thread_create", sysThreadCreate},
	SysGettid:               {"gettid", sysGettid},
	SysWaittid:              {"waittid", sysWaittid},
	SysMutexCreate:          {"mutex_create", sysMutexCreate},
	SysMutexLock:            {"mutex_lock", sysMutexLock},
	SysMutexUnlock:          {"mutex_unlock", sysMutexUnlock},
	SysSemaphoreCreate:      {"semaphore_create", sysSemaphoreCreate},
	SysSemaphoreUp:          {"semaphore_up", sysSemaphoreUp},
	SysSemaphoreDown:        {"semaphore_down", sysSemaphoreDown},
	SysCondvarCreate:        {"condvar_create", sysCondvarCreate},
	SysCondvarSignal:        {"condvar_signal", sysCondvarSignal},
	SysCondvarWait:          {"condvar_wait", sysCondvarWait},
}

// Name returns the name of syscall id, or "" if it is unknown.
func Name(id int) string {
	return table[id].name
}

// Dispatch runs syscall id on behalf of t, which must own the CPU. The result
// is also stored in t's a0 register. A thread that has already been
// terminated only gets Fail.
func Dispatch(t *process.Thread, id int, a Args) int64 {
	if t.Status() == process.StatusZombie {
		return Fail
	}
	t.CountSyscall(id)
	h, ok := table[id]
	if !ok {
		klog.Warningf("kernel:pid[%d] tid[%d] unsupported syscall %d", t.Process().Pid(), t.Tid(), id)
		return Fail
	}
	if klog.Tracing() {
		klog.Syscall(t.Process().Pid(), t.Tid(), h.name)
	}
	ret := h.fn(t, a)
	t.SetReg(process.RegA0, uint64(ret))
	return ret
}

// status folds a kernel error into a return value.
func status(err error) int64 {
	if err != nil {
		return Fail
	}
	return 0
}
