package router

import (
	"context"
	"sync"
	"time"

	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// debugRecorder collects pipeline internals for viewers that may see them.
// It doubles as an event listener so that dispatched events show up in the
// debug payload of the request that caused them.
type debugRecorder struct {
	mu        sync.Mutex
	viewer    types.Viewer
	stages    []stageTiming
	events    []observers.Event
	cacheHits int
	started   time.Time
}

type stageTiming struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsedNs"`
}

func newDebugRecorder(viewer types.Viewer) *debugRecorder {
	return &debugRecorder{viewer: viewer, started: time.Now()}
}

func (d *debugRecorder) Notify(ctx context.Context, event observers.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *debugRecorder) recordStage(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stages = append(d.stages, stageTiming{Name: name, Elapsed: time.Since(d.started)})
}

func (d *debugRecorder) recordCacheHit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cacheHits++
}

func (d *debugRecorder) payload(total time.Duration) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return map[string]any{
		"viewer":    string(d.viewer.Kind()),
		"stages":    d.stages,
		"events":    d.events,
		"cacheHits": d.cacheHits,
		"totalNs":   total.Nanoseconds(),
	}
}

func (c *call) stage(name string) {
	if c.debug != nil {
		c.debug.recordStage(name)
	}
}

func (c *call) cacheHit() {
	if c.debug != nil {
		c.debug.recordCacheHit()
	}
}
