package apps

import (
	"tcore/pkg/process"
	"tcore/pkg/syscall"
	"tcore/pkg/user"
)

func threads(t *process.Thread) int {
	const n = 3
	tids := make([]int64, n)
	for i := range tids {
		tids[i] = user.ThreadCreate(t, func(c *process.Thread) int {
			arg := user.Arg(c)
			for j := 0; j < 3; j++ {
				user.Yield(c)
			}
			return int(arg) + 10
		}, uint64(i))
		if tids[i] <= 0 {
			return 1
		}
	}
	for i, tid := range tids {
		if user.Waittid(t, tid) != int64(i)+10 {
			return 2
		}
	}
	if user.Waittid(t, user.Gettid(t)) != syscall.Fail {
		return 3
	}
	return 0
}

// counter has n threads increment a shared counter k times each under the
// mutex created by create, yielding inside the critical section.
func counter(t *process.Thread, create func(*process.Thread) int64) int {
	const n, k = 4, 50
	mid := create(t)
	if mid < 0 {
		return 1
	}
	count := 0
	tids := make([]int64, n)
	for i := range tids {
		tids[i] = user.ThreadCreate(t, func(c *process.Thread) int {
			for j := 0; j < k; j++ {
				user.MutexLock(c, mid)
				v := count
				user.Yield(c)
				count = v + 1
				user.MutexUnlock(c, mid)
			}
			return 0
		}, 0)
	}
	for _, tid := range tids {
		user.Waittid(t, tid)
	}
	if count != n*k {
		return 2
	}
	return 0
}

func spinMutex(t *process.Thread) int {
	return counter(t, user.MutexCreate)
}

func blockingMutex(t *process.Thread) int {
	return counter(t, user.MutexBlockingCreate)
}

// semaphore has a producer thread hand items to the main thread through a
// semaphore.
func semaphore(t *process.Thread) int {
	const items = 5
	sid := user.SemaphoreCreate(t, 0)
	if sid < 0 {
		return 1
	}
	produced := 0
	tid := user.ThreadCreate(t, func(c *process.Thread) int {
		for i := 0; i < items; i++ {
			produced++
			user.SemaphoreUp(c, sid)
			user.Yield(c)
		}
		return 0
	}, 0)
	for i := 0; i < items; i++ {
		if user.SemaphoreDown(t, sid) != 0 || produced <= i {
			return 2
		}
	}
	user.Waittid(t, tid)
	return 0
}

// condvar has one thread wait for a flag that another sets and signals.
func condvar(t *process.Thread) int {
	mid := user.MutexBlockingCreate(t)
	cid := user.CondvarCreate(t)
	if mid < 0 || cid < 0 {
		return 1
	}
	flag := false
	seen := false
	waiter := user.ThreadCreate(t, func(c *process.Thread) int {
		user.MutexLock(c, mid)
		for !flag {
			user.CondvarWait(c, cid, mid)
		}
		seen = true
		user.MutexUnlock(c, mid)
		return 0
	}, 0)
	setter := user.ThreadCreate(t, func(c *process.Thread) int {
		user.Sleep(c, 10)
		user.MutexLock(c, mid)
		flag = true
		user.CondvarSignal(c, cid)
		user.MutexUnlock(c, mid)
		return 0
	}, 0)
	user.Waittid(t, waiter)
	user.Waittid(t, setter)
	if !seen {
		return 2
	}
	return 0
}

// deadlock takes two mutexes in opposite orders from two threads with
// detection on. Exactly one request must be refused.
func deadlock(t *process.Thread) int {
	if user.EnableDeadlockDetect(t, true) != 0 {
		return 1
	}
	a := user.MutexBlockingCreate(t)
	b := user.MutexBlockingCreate(t)
	lock := func(first, second int64) process.Entry {
		return func(c *process.Thread) int {
			user.MutexLock(c, first)
			user.Yield(c)
			ret := user.MutexLock(c, second)
			if ret == 0 {
				user.MutexUnlock(c, second)
			}
			user.MutexUnlock(c, first)
			if ret == syscall.Deadlock {
				return 1
			}
			return 0
		}
	}
	t1 := user.ThreadCreate(t, lock(a, b), 0)
	t2 := user.ThreadCreate(t, lock(b, a), 0)
	refused := user.Waittid(t, t1) + user.Waittid(t, t2)
	if refused != 1 {
		return 2
	}
	return 0
}
