// Package user is the library user programs link against. Each wrapper
// places its arguments in user memory where needed and traps into the
// kernel through syscall.Dispatch.
package user

import (
	"encoding/binary"

	"tcore/pkg/process"
	"tcore/pkg/syscall"
)

func call(t *process.Thread, id int, a0, a1, a2 uint64) int64 {
	return syscall.Dispatch(t, id, syscall.Args{a0, a1, a2})
}

// onStack copies b below the current stack pointer, runs fn with its
// address and restores the stack pointer.
func onStack(t *process.Thread, b []byte, fn func(ptr uint64) int64) int64 {
	sp := t.Reg(process.RegSP)
	ptr := (sp - uint64(len(b))) &^ 7
	if err := t.Process().Memory().Store(ptr, b); err != nil {
		return syscall.Fail
	}
	t.SetReg(process.RegSP, ptr)
	defer t.SetReg(process.RegSP, sp)
	return fn(ptr)
}

// outParam reserves room for v on the stack, runs fn with its address and
// decodes the result into v.
func outParam(t *process.Thread, v any, fn func(ptr uint64) int64) int64 {
	buf := make([]byte, binary.Size(v))
	return onStack(t, buf, func(ptr uint64) int64 {
		ret := fn(ptr)
		if ret < 0 {
			return ret
		}
		if err := t.Process().Memory().ReadValue(ptr, v); err != nil {
			return syscall.Fail
		}
		return ret
	})
}

func cstr(s string) []byte {
	return append([]byte(s), 0)
}

// Write writes p to fd.
func Write(t *process.Thread, fd int, p []byte) int64 {
	return onStack(t, p, func(ptr uint64) int64 {
		return call(t, syscall.SysWrite, uint64(fd), ptr, uint64(len(p)))
	})
}

// Print writes s to standard output.
func Print(t *process.Thread, s string) {
	Write(t, 1, []byte(s))
}

// Exit terminates the process. It never returns.
func Exit(t *process.Thread, code int) {
	call(t, syscall.SysExit, uint64(int64(code)), 0, 0)
}

// Yield gives up the CPU.
func Yield(t *process.Thread) int64 {
	return call(t, syscall.SysYield, 0, 0, 0)
}

// SetPriority sets the caller's stride priority.
func SetPriority(t *process.Thread, prio int64) int64 {
	return call(t, syscall.SysSetPriority, uint64(prio), 0, 0)
}

// GetTime returns the time since boot.
func GetTime(t *process.Thread) (syscall.TimeVal, int64) {
	var tv syscall.TimeVal
	ret := outParam(t, &tv, func(ptr uint64) int64 {
		return call(t, syscall.SysGetTime, ptr, 0, 0)
	})
	return tv, ret
}

// GetTimeMs returns the time since boot in milliseconds.
func GetTimeMs(t *process.Thread) uint64 {
	tv, _ := GetTime(t)
	return tv.Sec*1000 + tv.Usec/1000
}

// Getpid returns the caller's pid.
func Getpid(t *process.Thread) int64 {
	return call(t, syscall.SysGetpid, 0, 0, 0)
}

// Gettid returns the caller's tid.
func Gettid(t *process.Thread) int64 {
	return call(t, syscall.SysGettid, 0, 0, 0)
}

// Sleep blocks for at least ms milliseconds.
func Sleep(t *process.Thread, ms uint64) int64 {
	return call(t, syscall.SysSleep, ms, 0, 0)
}

// Sbrk moves the program break and returns the old one.
func Sbrk(t *process.Thread, delta int64) int64 {
	return call(t, syscall.SysSbrk, uint64(delta), 0, 0)
}

// Mmap maps [start, start+length) with port permissions.
func Mmap(t *process.Thread, start, length, port uint64) int64 {
	return call(t, syscall.SysMmap, start, length, port)
}

// Munmap unmaps [start, start+length).
func Munmap(t *process.Thread, start, length uint64) int64 {
	return call(t, syscall.SysMunmap, start, length, 0)
}

// Fork creates a child process that continues in child. The parent gets the
// child's pid; the child's entry observes 0 in a0.
func Fork(t *process.Thread, child process.Entry) int64 {
	t.SetResume(t.Process().RegisterCode(child))
	return call(t, syscall.SysFork, 0, 0, 0)
}

// Exec replaces the caller's image. It only returns on failure.
func Exec(t *process.Thread, path string) int64 {
	return onStack(t, cstr(path), func(ptr uint64) int64 {
		return call(t, syscall.SysExec, ptr, 0, 0)
	})
}

// Spawn starts path as a child process.
func Spawn(t *process.Thread, path string) int64 {
	return onStack(t, cstr(path), func(ptr uint64) int64 {
		return call(t, syscall.SysSpawn, ptr, 0, 0)
	})
}

// TryWaitpid reaps pid (or any child for -1) without waiting.
func TryWaitpid(t *process.Thread, pid int64) (int64, int32) {
	var code int32
	ret := outParam(t, &code, func(ptr uint64) int64 {
		return call(t, syscall.SysWaitpid, uint64(pid), ptr, 0)
	})
	return ret, code
}

// Waitpid yields until pid exits and returns its pid and exit code.
func Waitpid(t *process.Thread, pid int64) (int64, int32) {
	for {
		ret, code := TryWaitpid(t, pid)
		if ret != syscall.NotReady {
			return ret, code
		}
		Yield(t)
	}
}

// Wait reaps any child.
func Wait(t *process.Thread) (int64, int32) {
	return Waitpid(t, -1)
}

// TaskInfo returns the caller's status, syscall counts and running time.
func TaskInfo(t *process.Thread) (syscall.TaskInfo, int64) {
	var info syscall.TaskInfo
	ret := outParam(t, &info, func(ptr uint64) int64 {
		return call(t, syscall.SysTaskInfo, ptr, 0, 0)
	})
	return info, ret
}

// ThreadCreate starts entry in a new thread with arg in a0.
func ThreadCreate(t *process.Thread, entry process.Entry, arg uint64) int64 {
	addr := t.Process().RegisterCode(entry)
	return call(t, syscall.SysThreadCreate, addr, arg, 0)
}

// Waittid yields until tid exits and returns its exit code.
func Waittid(t *process.Thread, tid int64) int64 {
	for {
		ret := call(t, syscall.SysWaittid, uint64(tid), 0, 0)
		if ret != syscall.NotReady {
			return ret
		}
		Yield(t)
	}
}

// Arg returns the argument the thread was created with. It must be read
// before the thread makes its first call, which overwrites a0.
func Arg(t *process.Thread) uint64 {
	return t.Context().X[process.RegA0]
}

// MutexCreate creates a spin mutex.
func MutexCreate(t *process.Thread) int64 {
	return call(t, syscall.SysMutexCreate, 0, 0, 0)
}

// MutexBlockingCreate creates a blocking mutex.
func MutexBlockingCreate(t *process.Thread) int64 {
	return call(t, syscall.SysMutexCreate, 1, 0, 0)
}

// MutexLock locks mutex id.
func MutexLock(t *process.Thread, id int64) int64 {
	return call(t, syscall.SysMutexLock, uint64(id), 0, 0)
}

// MutexUnlock unlocks mutex id.
func MutexUnlock(t *process.Thread, id int64) int64 {
	return call(t, syscall.SysMutexUnlock, uint64(id), 0, 0)
}

// SemaphoreCreate creates a semaphore with count units.
func SemaphoreCreate(t *process.Thread, count int) int64 {
	return call(t, syscall.SysSemaphoreCreate, uint64(count), 0, 0)
}

// SemaphoreUp releases a unit of semaphore id.
func SemaphoreUp(t *process.Thread, id int64) int64 {
	return call(t, syscall.SysSemaphoreUp, uint64(id), 0, 0)
}

// SemaphoreDown takes a unit of semaphore id.
func SemaphoreDown(t *process.Thread, id int64) int64 {
	return call(t, syscall.SysSemaphoreDown, uint64(id), 0, 0)
}

// CondvarCreate creates a condition variable.
func CondvarCreate(t *process.Thread) int64 {
	return call(t, syscall.SysCondvarCreate, 0, 0, 0)
}

// CondvarSignal wakes one waiter on condvar id.
func CondvarSignal(t *process.Thread, id int64) int64 {
	return call(t, syscall.SysCondvarSignal, uint64(id), 0, 0)
}

// CondvarWait waits on condvar id, releasing mutex mid meanwhile.
func CondvarWait(t *process.Thread, id, mid int64) int64 {
	return call(t, syscall.SysCondvarWait, uint64(id), uint64(mid), 0)
}

// EnableDeadlockDetect turns the safety check on or off.
func EnableDeadlockDetect(t *process.Thread, on bool) int64 {
	var v uint64
	if on {
		v = 1
	}
	return call(t, syscall.SysEnableDeadlockDetect, v, 0, 0)
}

// Load reads n bytes of the caller's memory at addr.
func Load(t *process.Thread, addr uint64, n int) ([]byte, bool) {
	b, err := t.Process().Memory().Load(addr, n)
	return b, err == nil
}

// Store writes p to the caller's memory at addr.
func Store(t *process.Thread, addr uint64, p []byte) bool {
	return t.Process().Memory().Store(addr, p) == nil
}
