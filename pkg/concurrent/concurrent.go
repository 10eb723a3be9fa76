package concurrent

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every element in a separate goroutine and waits
// for all of them. The first error encountered is returned.
func ForEach[T any](in []T, action func(T) error) error {
	errGroup := errgroup.Group{}
	for _, value := range in {
		value := value
		errGroup.Go(func() error {
			return action(value)
		})
	}
	return errGroup.Wait()
}

// Throttle runs action for every element with at most concurrency goroutines
// in flight at once.
func Throttle[T any](in []T, concurrency int, action func(T)) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for _, value := range in {
		wg.Add(1)
		sem <- struct{}{}
		go func(v T) {
			defer wg.Done()
			action(v)
			<-sem
		}(value)
	}
	wg.Wait()
}

// Map applies mapFn to each element in parallel, preserving order.
// The workers parameter controls the number of goroutines.
func Map[T any, R any](in []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(in))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for idx, val := range in {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer wg.Done()
			out[i] = mapFn(v)
			<-sem
		}(idx, val)
	}
	wg.Wait()
	return out
}

// Chunked splits in into chunks of size chunkSize and runs action on each
// chunk in a separate goroutine, returning the first error.
func Chunked[T any](in []T, chunkSize int, action func([]T) error) error {
	if chunkSize <= 0 {
		chunkSize = len(in)
	}
	errGroup := errgroup.Group{}
	for idx := 0; idx < len(in); idx += chunkSize {
		end := idx + chunkSize
		if end > len(in) {
			end = len(in)
		}
		chunk := in[idx:end]
		errGroup.Go(func() error {
			return action(chunk)
		})
	}
	return errGroup.Wait()
}
