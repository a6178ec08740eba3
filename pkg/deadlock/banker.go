// Package deadlock implements the Banker's-style safety check run before a
// thread blocks on a mutex or semaphore.
//
// The check only reads a snapshot: callers own the ledger and the available
// vector, and undo their own speculative request when the state is unsafe.
package deadlock

// Row is one thread's view of a single resource class.
type Row struct {
	// Present is false for a freed thread slot or a thread without a
	// ledger. Such rows count as finished.
	Present bool
	// Alloc is the number of units held, per resource id.
	Alloc []int
	// Need is the number of units requested, per resource id.
	Need []int
}

// Safe reports whether every row can finish in some order given available.
func Safe(available []int, rows []Row) bool {
	return len(Stuck(available, rows)) == 0
}

// Stuck returns the indexes of the rows that cannot finish, in order.
//
// Each pass finishes every row whose Need fits in work and returns its Alloc
// to work. At most len(rows) passes run, and a pass that finishes nobody
// ends the search.
func Stuck(available []int, rows []Row) []int {
	work := make([]int, len(available))
	copy(work, available)

	finish := make([]bool, len(rows))
	left := 0
	for i, r := range rows {
		if !r.Present {
			finish[i] = true
			continue
		}
		left++
	}

	for pass := 0; pass < len(rows) && left > 0; pass++ {
		progress := false
		for i, r := range rows {
			if finish[i] || !fits(r.Need, work) {
				continue
			}
			for j := range work {
				if j < len(r.Alloc) {
					work[j] += r.Alloc[j]
				}
			}
			finish[i] = true
			left--
			progress = true
		}
		if !progress {
			break
		}
	}

	var stuck []int
	for i, f := range finish {
		if !f {
			stuck = append(stuck, i)
		}
	}
	return stuck
}

// fits reports need <= work elementwise. Ids beyond work have nothing
// available.
func fits(need, work []int) bool {
	for j, n := range need {
		avail := 0
		if j < len(work) {
			avail = work[j]
		}
		if n > avail {
			return false
		}
	}
	return true
}
