/*
Package process provides process and thread management for the tcore kernel.

This package implements a single-CPU kernel core in the spirit of a small
teaching operating system. It includes:

  - Process lifecycle management (fork, exec, spawn, exit, waitpid)
  - Kernel threads sharing one address space (create, exit, waittid)
  - Round-robin and stride scheduling on one logical CPU
  - Timed sleep against a monotonic clock
  - Per-process mutexes, semaphores and condition variables
  - An optional Banker's-style safety check before a thread waits

# Threads

Each thread runs on its own goroutine, but the Processor only ever lets one
of them execute. A thread gives the CPU back by yielding, blocking or
exiting; the processor then picks the next thread from the Scheduler.

Threads can be in one of the following states:

  - Ready: queued, waiting for the CPU
  - Running: owns the CPU
  - Blocked: parked on a wait queue or a timer
  - Zombie: exited, waiting to be collected

Exit, a successful Exec and termination by another thread all unwind the
thread's goroutine first, so deferred calls in user code run before the
process is torn down or replaced. A terminated thread that makes calls
while unwinding is unwound further instead.

# Code addresses

User code is a Go Entry function. A process keeps a table from code
addresses to entries: the loaded image sits at TextBase and RegisterCode
hands out further addresses. Fork copies the table, which lets the child
resume at the address the parent saved in its trap context.

# Usage

Booting an init process and running the CPU:

	m := process.NewManager(cfg, clock, files, loader)
	if _, err := m.Boot("initproc"); err != nil {
		// Handle error
	}
	if err := m.Run(); err != nil {
		// Every live thread is blocked
	}

# Deadlock detection

With detection enabled, MutexLock and SemaphoreDown record the request in
the caller's Ledger and run the safety check from package deadlock over the
process. If some thread could then never finish, the request is withdrawn
and ErrDeadlock is returned instead of blocking.
*/
package process
