package syscall

import (
	"errors"

	"tcore/pkg/process"
)

func sysThreadCreate(t *process.Thread, a Args) int64 {
	tid, err := t.ThreadCreate(a[0], a[1])
	if err != nil {
		return Fail
	}
	return int64(tid)
}

func sysGettid(t *process.Thread, a Args) int64 {
	return int64(t.Tid())
}

func sysWaittid(t *process.Thread, a Args) int64 {
	code, err := t.Waittid(int(int64(a[0])))
	switch {
	case errors.Is(err, process.ErrThreadRunning):
		return NotReady
	case err != nil:
		return Fail
	}
	return int64(code)
}
