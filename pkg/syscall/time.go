package syscall

import (
	"math"
	"time"

	"tcore/pkg/process"
	"tcore/pkg/timer"
)

// TimeVal is the get_time result: seconds and microseconds since boot.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// TaskInfo is the task_info result. The blank field keeps the 8-byte
// alignment of Time.
type TaskInfo struct {
	Status       uint32
	SyscallTimes [process.MaxSyscallNum]uint32
	_            uint32
	Time         uint64
}

func sysGetTime(t *process.Thread, a Args) int64 {
	us := timer.Micros(t.Process().Manager().Clock())
	tv := TimeVal{Sec: us / 1_000_000, Usec: us % 1_000_000}
	return status(t.Process().Memory().WriteValue(a[0], &tv))
}

func sysTaskInfo(t *process.Thread, a Args) int64 {
	info := TaskInfo{
		Status:       uint32(t.Status()),
		SyscallTimes: t.SyscallTimes(),
		Time:         uint64(t.RunningTime() / time.Millisecond),
	}
	return status(t.Process().Memory().WriteValue(a[0], &info))
}

// maxSleepMs is the longest sleep whose duration fits a time.Duration.
const maxSleepMs = uint64(math.MaxInt64 / time.Millisecond)

func sysSleep(t *process.Thread, a Args) int64 {
	d := time.Duration(math.MaxInt64)
	if a[0] <= maxSleepMs {
		d = time.Duration(a[0]) * time.Millisecond
	}
	t.Sleep(d)
	return 0
}
