package deadlock

import (
	"reflect"
	"testing"
)

// TestSafe tests the safety check on classic scenarios.
func TestSafe(t *testing.T) {
	tests := []struct {
		name      string
		available []int
		rows      []Row
		want      []int
	}{
		{
			name:      "empty",
			available: []int{1},
			rows:      nil,
			want:      nil,
		},
		{
			// T0 holds A and wants B, T1 holds B and wants A.
			name:      "AB-BA",
			available: []int{0, 0},
			rows: []Row{
				{Present: true, Alloc: []int{1, 0}, Need: []int{0, 1}},
				{Present: true, Alloc: []int{0, 1}, Need: []int{1, 0}},
			},
			want: []int{0, 1},
		},
		{
			// T0 holds A and wants B; T1 holds B and wants nothing more.
			name:      "chain completes",
			available: []int{0, 0},
			rows: []Row{
				{Present: true, Alloc: []int{1, 0}, Need: []int{0, 1}},
				{Present: true, Alloc: []int{0, 1}, Need: []int{0, 0}},
			},
			want: nil,
		},
		{
			// Three threads, two resources: T2 can finish, then T1, then T0.
			name:      "three threads two resources",
			available: []int{0, 0},
			rows: []Row{
				{Present: true, Alloc: []int{0, 0}, Need: []int{1, 1}},
				{Present: true, Alloc: []int{1, 0}, Need: []int{0, 1}},
				{Present: true, Alloc: []int{0, 1}, Need: []int{0, 0}},
			},
			want: nil,
		},
		{
			name:      "absent rows are finished",
			available: []int{0},
			rows: []Row{
				{Present: false},
				{Present: true, Alloc: []int{1}, Need: []int{0}},
				{Present: false, Alloc: []int{0}, Need: []int{5}},
			},
			want: nil,
		},
		{
			name:      "need beyond known ids",
			available: []int{1},
			rows: []Row{
				{Present: true, Alloc: []int{0, 0}, Need: []int{0, 1}},
			},
			want: []int{0},
		},
		{
			name:      "semaphore with spare units",
			available: []int{1},
			rows: []Row{
				{Present: true, Alloc: []int{1}, Need: []int{1}},
				{Present: true, Alloc: []int{1}, Need: []int{1}},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stuck(tt.available, tt.rows)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Stuck() = %v, want %v", got, tt.want)
			}
			if Safe(tt.available, tt.rows) != (tt.want == nil) {
				t.Errorf("Safe() = %v, want %v", !(tt.want == nil), tt.want == nil)
			}
		})
	}
}

// TestSafeDoesNotMutate tests that the available vector is only read.
func TestSafeDoesNotMutate(t *testing.T) {
	available := []int{1, 0}
	rows := []Row{{Present: true, Alloc: []int{0, 1}, Need: []int{1, 0}}}
	Safe(available, rows)
	if !reflect.DeepEqual(available, []int{1, 0}) {
		t.Errorf("available = %v after Safe, want [1 0]", available)
	}
}
