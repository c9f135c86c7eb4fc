package yuv

import (
	"sync"
)

// minRowsPerBand keeps tiny frames on the calling goroutine.
const minRowsPerBand = 16

type band struct {
	dst    []byte
	planes planes
	y0, y1 int
	done   *sync.WaitGroup
}

// engine is the conversion context: a fixed pool of goroutines that each
// convert a horizontal band of the frame. It lives until release.
type engine struct {
	workers int
	jobs    chan band
	wg      sync.WaitGroup
	once    sync.Once
}

func newEngine(workers int) *engine {
	if workers < 1 {
		workers = 1
	}
	e := &engine{
		workers: workers,
		jobs:    make(chan band, workers),
	}
	if workers == 1 {
		return e
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.run()
	}
	return e
}

func (e *engine) run() {
	defer e.wg.Done()
	for b := range e.jobs {
		convertRows(b.dst, b.planes, b.y0, b.y1)
		b.done.Done()
	}
}

// convert fills dst with the RGBA rendition of p, splitting rows across the
// pool. It returns once every band is written.
func (e *engine) convert(dst []byte, p planes) {
	bands := e.workers
	if limit := p.height / minRowsPerBand; bands > limit {
		bands = limit
	}
	if bands <= 1 {
		convertRows(dst, p, 0, p.height)
		return
	}

	rows := (p.height + bands - 1) / bands
	var done sync.WaitGroup
	for y0 := 0; y0 < p.height; y0 += rows {
		y1 := y0 + rows
		if y1 > p.height {
			y1 = p.height
		}
		done.Add(1)
		e.jobs <- band{dst: dst, planes: p, y0: y0, y1: y1, done: &done}
	}
	done.Wait()
}

// release stops the pool and waits for its goroutines. Safe to call twice.
func (e *engine) release() {
	e.once.Do(func() {
		close(e.jobs)
		e.wg.Wait()
	})
}
