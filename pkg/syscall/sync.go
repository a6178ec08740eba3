package syscall

import (
	"errors"
	"math"

	"tcore/pkg/process"
)

// lockStatus folds an acquisition error, which may be a refusal by the
// safety check.
func lockStatus(err error) int64 {
	if errors.Is(err, process.ErrDeadlock) {
		return Deadlock
	}
	return status(err)
}

func created(id int, err error) int64 {
	if err != nil {
		return Fail
	}
	return int64(id)
}

func sysMutexCreate(t *process.Thread, a Args) int64 {
	return created(t.Process().MutexCreate(a[0] != 0))
}

func sysMutexLock(t *process.Thread, a Args) int64 {
	return lockStatus(t.MutexLock(int(a[0])))
}

func sysMutexUnlock(t *process.Thread, a Args) int64 {
	return status(t.MutexUnlock(int(a[0])))
}

func sysSemaphoreCreate(t *process.Thread, a Args) int64 {
	if a[0] > math.MaxInt32 {
		return Fail
	}
	return created(t.Process().SemaphoreCreate(int(a[0])))
}

func sysSemaphoreUp(t *process.Thread, a Args) int64 {
	return status(t.SemaphoreUp(int(a[0])))
}

func sysSemaphoreDown(t *process.Thread, a Args) int64 {
	return lockStatus(t.SemaphoreDown(int(a[0])))
}

func sysCondvarCreate(t *process.Thread, a Args) int64 {
	return created(t.Process().CondvarCreate())
}

func sysCondvarSignal(t *process.Thread, a Args) int64 {
	return status(t.CondvarSignal(int(a[0])))
}

func sysCondvarWait(t *process.Thread, a Args) int64 {
	return status(t.CondvarWait(int(a[0]), int(a[1])))
}

func sysEnableDeadlockDetect(t *process.Thread, a Args) int64 {
	switch a[0] {
	case 0:
		t.Process().SetDeadlockDetect(false)
	case 1:
		t.Process().SetDeadlockDetect(true)
	default:
		return Fail
	}
	return 0
}
