package pipeline

import (
	"sync"
	"time"

	"fieldsync/internal/model"
)

// Debounce holds each path's events until the path has been quiet for delay
// and then emits the latest one. Pending events are flushed when inCh closes.
func Debounce(inCh <-chan model.FileEvent, delay time.Duration) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			timers = make(map[string]*time.Timer)
			events = make(map[string]model.FileEvent)
		)

		fire := func(path string) {
			defer wg.Done()

			mu.Lock()
			event, ok := events[path]
			delete(events, path)
			delete(timers, path)
			mu.Unlock()

			if ok {
				outCh <- event
			}
		}

		for event := range inCh {
			path := event.Path

			mu.Lock()
			if t, ok := timers[path]; ok && t.Stop() {
				wg.Done()
			}
			events[path] = event
			wg.Add(1)
			timers[path] = time.AfterFunc(delay, func() { fire(path) })
			mu.Unlock()
		}

		mu.Lock()
		var pending []model.FileEvent
		for path, t := range timers {
			if t.Stop() {
				wg.Done()
				pending = append(pending, events[path])
				delete(events, path)
				delete(timers, path)
			}
		}
		mu.Unlock()

		for _, event := range pending {
			outCh <- event
		}
		wg.Wait()
	}()

	return outCh
}
