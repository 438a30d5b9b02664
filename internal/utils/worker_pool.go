package utils

import "sync"

type CompletedTask[In any, Out any] struct {
	Index  int
	Input  In
	Result Out
	Error  error
}

type indexed[In any] struct {
	index int
	input In
}

// RunInPool runs worker over every item of inputs using at most maxWorkers
// goroutines. Results are sent on the returned channel as they finish, which
// is closed once every input has been processed.
func RunInPool[In any, Out any](worker func(In) (Out, error), inputs []In, maxWorkers int) <-chan CompletedTask[In, Out] {
	queue := make(chan indexed[In], len(inputs))
	for i, in := range inputs {
		queue <- indexed[In]{index: i, input: in}
	}
	close(queue)

	completed := make(chan CompletedTask[In, Out], len(inputs))
	workers := min(len(inputs), max(maxWorkers, 1))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for next := range queue {
					res, err := worker(next.input)
					completed <- CompletedTask[In, Out]{Index: next.index, Input: next.input, Result: res, Error: err}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()

	return completed
}

// RunAll is RunInPool joined: it blocks until every input is processed and
// returns the results in input order.
func RunAll[In any, Out any](worker func(In) (Out, error), inputs []In, maxWorkers int) []CompletedTask[In, Out] {
	results := make([]CompletedTask[In, Out], len(inputs))
	for task := range RunInPool(worker, inputs, maxWorkers) {
		results[task.Index] = task
	}
	return results
}
