package process

// arena is a slot table indexed by id. New entries take the first free slot;
// the table only grows when every slot is taken. Callers hold the owning
// process lock.
type arena[T any] struct {
	slots []T
	used  []bool
}

// put stores v and reports its id and whether the table grew.
func (a *arena[T]) put(v T) (int, bool) {
	for i, u := range a.used {
		if !u {
			a.slots[i] = v
			a.used[i] = true
			return i, false
		}
	}
	a.slots = append(a.slots, v)
	a.used = append(a.used, true)
	return len(a.slots) - 1, true
}

// putAt stores v at id, growing the table with free slots as needed.
func (a *arena[T]) putAt(id int, v T) {
	for len(a.slots) <= id {
		var zero T
		a.slots = append(a.slots, zero)
		a.used = append(a.used, false)
	}
	a.slots[id] = v
	a.used[id] = true
}

// get returns the entry at id.
func (a *arena[T]) get(id int) (T, bool) {
	var zero T
	if id < 0 || id >= len(a.slots) || !a.used[id] {
		return zero, false
	}
	return a.slots[id], true
}

// size returns the table length, including free slots.
func (a *arena[T]) size() int { return len(a.slots) }

// count returns the number of occupied slots.
func (a *arena[T]) count() int {
	n := 0
	for _, u := range a.used {
		if u {
			n++
		}
	}
	return n
}

// each calls fn for every occupied slot in id order.
func (a *arena[T]) each(fn func(id int, v T)) {
	for i, u := range a.used {
		if u {
			fn(i, a.slots[i])
		}
	}
}

// reset drops every entry.
func (a *arena[T]) reset() {
	a.slots = nil
	a.used = nil
}
