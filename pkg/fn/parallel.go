package fn

import "sync"

// ParMap applies f to each item with at most workers goroutines in flight.
// Output order matches input order regardless of completion order. f also
// receives the item's index.
func ParMap[T, U any](items []T, workers int, f func(int, T) U) []U {
	out := make([]U, len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 1 {
		for i, v := range items {
			out[i] = f(i, v)
		}
		return out
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(i, v)
		}(i, v)
	}
	wg.Wait()
	return out
}
