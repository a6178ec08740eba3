// Package apps contains the user programs bundled with tcore. Each program
// is written against package user and runs as an ordinary process.
package apps

import (
	"fmt"

	"tcore/pkg/kernel"
	"tcore/pkg/process"
	"tcore/pkg/user"
)

// Suite lists the programs usertests runs, in order. Every one of them
// exits with 0 on success.
var Suite = []string{
	"hello",
	"getdata",
	"taskinfo",
	"sleep",
	"sbrk",
	"mmap",
	"forktest",
	"exec",
	"stride",
	"threads",
	"spin_mutex",
	"mutex",
	"semaphore",
	"condvar",
	"deadlock",
}

// dataMessage is the initialized data segment of getdata.
const dataMessage = "tcore data segment\x00"

// All returns every bundled program.
func All() []kernel.Program {
	return []kernel.Program{
		{Name: kernel.InitProc, Entry: initproc},
		{Name: "usertests", Entry: usertests},
		{Name: "hello", Entry: hello},
		{Name: "getdata", Entry: getdata, Data: []byte(dataMessage), BSS: 64},
		{Name: "taskinfo", Entry: taskinfo},
		{Name: "sleep", Entry: sleep},
		{Name: "sbrk", Entry: sbrk},
		{Name: "mmap", Entry: mmap},
		{Name: "forktest", Entry: forktest},
		{Name: "exec", Entry: execTest},
		{Name: "stride", Entry: stride},
		{Name: "threads", Entry: threads},
		{Name: "spin_mutex", Entry: spinMutex},
		{Name: "mutex", Entry: blockingMutex},
		{Name: "semaphore", Entry: semaphore},
		{Name: "condvar", Entry: condvar},
		{Name: "deadlock", Entry: deadlock},
	}
}

// initproc starts usertests and reaps every process handed to it until
// none are left. Its exit code is usertests' exit code.
func initproc(t *process.Thread) int {
	pid := user.Spawn(t, "usertests")
	if pid < 0 {
		user.Print(t, "initproc: cannot spawn usertests\n")
		return 1
	}
	code := 0
	for {
		got, c := user.Wait(t)
		if got < 0 {
			return code
		}
		if got == pid {
			code = int(c)
		}
	}
}

// usertests runs every program in Suite and exits with the number of
// failures.
func usertests(t *process.Thread) int {
	failed := 0
	for _, name := range Suite {
		pid := user.Spawn(t, name)
		if pid < 0 {
			user.Print(t, fmt.Sprintf("[FAIL] %s: spawn failed\n", name))
			failed++
			continue
		}
		_, code := user.Waitpid(t, pid)
		if code != 0 {
			user.Print(t, fmt.Sprintf("[FAIL] %s: exit code %d\n", name, code))
			failed++
			continue
		}
		user.Print(t, fmt.Sprintf("[ok] %s\n", name))
	}
	user.Print(t, fmt.Sprintf("usertests: %d/%d passed\n", len(Suite)-failed, len(Suite)))
	return failed
}

func hello(t *process.Thread) int {
	user.Print(t, "Hello, world!\n")
	return 0
}
