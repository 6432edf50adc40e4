package util

import (
	"fmt"

	"github.com/go-sif/dataflow"
)

// RecoverTask runs a zero-argument task, converting a panic into an error
func RecoverTask(task func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if anErr, ok := r.(error); ok {
				err = fmt.Errorf("Task Panic: %w\n%s", anErr, GetTrace())
			} else {
				err = fmt.Errorf("Task Panic: %v\n%s", r, GetTrace())
			}
		}
	}()
	task()
	return
}

// SafeGroupFunction wraps a GroupFunction such that panics are recovered and nice error messages are constructed
func SafeGroupFunction[In any, Out any](groupFn dataflow.GroupFunction[In, Out]) (safeGroupFn dataflow.GroupFunction[In, Out]) {
	return func(it dataflow.GroupIterator[In], key uint64) (res Out, err error) {
		defer func() {
			if r := recover(); r != nil {
				if anErr, ok := r.(error); ok {
					err = fmt.Errorf("Group Panic: %w\nKey: %d\n%s", anErr, key, GetTrace())
				} else {
					err = fmt.Errorf("Group Panic: %v\nKey: %d\n%s", r, key, GetTrace())
				}
			} else if err != nil {
				err = fmt.Errorf("Group Error: %w\nKey: %d", err, key)
			}
		}()
		res, err = groupFn(it, key)
		return
	}
}
