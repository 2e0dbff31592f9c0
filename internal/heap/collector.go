package heap

import (
	"context"

	"fortio.org/safecast"

	"gctrail/internal/reach"
	"gctrail/internal/trace"
)

// warmPasses is the number of untraced collections that must have run before
// a full collection is meaningful.
const warmPasses = 2

// Collector is a mark collector over a Heap.
type Collector struct {
	heap   *Heap
	passes int
}

// NewCollector creates a collector for h.
func NewCollector(h *Heap) *Collector {
	return &Collector{heap: h}
}

// Passes returns the number of completed collections, traced or not.
func (c *Collector) Passes() int { return c.passes }

// Warm runs untraced passes until the collector has completed warmPasses.
func (c *Collector) Warm(ctx context.Context) error {
	for c.passes < warmPasses {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mark(ctx, discard{})
		c.passes++
	}
	return nil
}

// Collect runs a full collection, reporting every edge it follows to sink.
// Cancellation is only observed before the pass starts; a pass always runs
// to completion.
func (c *Collector) Collect(ctx context.Context, sink reach.EdgeSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mark(ctx, sink)
	c.passes++
	return nil
}

// mark scans the roots, then expands the work stack until every reachable
// object has been scanned. An object is reported as the target of an edge
// before any of its own edges, so sinks always see parents first.
func (c *Collector) mark(ctx context.Context, sink reach.EdgeSink) {
	rec := trace.FromContext(ctx)
	marked := make(map[reach.ID]struct{}, c.heap.Len())
	var q []reach.ID

	add := func(id reach.ID) {
		if id == 0 {
			return
		}
		if _, ok := marked[id]; ok { // already found
			return
		}
		marked[id] = struct{}{}
		q = append(q, id)
	}

	for _, r := range c.heap.roots {
		sink.ReportRoot(r.ID, r.Name)
		add(r.ID)
	}

	for len(q) > 0 {
		x := q[len(q)-1]
		q = q[:len(q)-1]

		o := c.heap.objects[x]
		rec.Recordf("scan: %#x ::%s", uint64(x), o.Type.Name)
		d := o.Def
		switch o.Type.Kind {
		case KindModule:
			for _, b := range d.Bindings {
				to := reach.ID(b.Target)
				if to == 0 {
					continue
				}
				if b.GlobalRef {
					sink.ReportBindingGlobalRef(x, to, b.Name)
				} else {
					sink.ReportBinding(x, to, b.Name)
				}
				add(to)
			}
		case KindTask:
			if d.Frame != 0 {
				sink.ReportTaskFrame(x, reach.ID(d.Frame))
				add(reach.ID(d.Frame))
			}
		case KindFrame:
			for _, s := range d.Slots {
				if s == 0 {
					continue
				}
				sink.ReportFrameLink(x, reach.ID(s))
				add(reach.ID(s))
			}
			if d.Next != 0 {
				sink.ReportFrameLink(x, reach.ID(d.Next))
				add(reach.ID(d.Next))
			}
		case KindArray:
			for i, e := range d.Elems {
				if e == 0 {
					continue
				}
				idx, err := safecast.Conv[uint64](i)
				if err != nil {
					panic(err)
				}
				sink.ReportArrayEdge(x, reach.ID(e), idx)
				add(reach.ID(e))
			}
		case KindStruct, KindTuple, KindNamedTuple:
			for _, r := range d.Refs {
				if r.Target == 0 {
					continue
				}
				sink.ReportFieldEdge(x, reach.ID(r.Target), r.Offset)
				add(reach.ID(r.Target))
			}
		}

		// runtime-owned references are followed by the runtime itself
		for _, in := range d.Internal {
			if in != 0 {
				sink.ReportInternalEdge(x, reach.ID(in))
			}
		}
		if d.Hidden > 0 {
			sink.ReportOpaqueEdge(x, d.Hidden)
		}
	}
}

// discard is the sink used by untraced passes.
type discard struct{}

func (discard) ReportRoot(reach.ID, string)                       {}
func (discard) ReportBinding(reach.ID, reach.ID, string)          {}
func (discard) ReportBindingGlobalRef(reach.ID, reach.ID, string) {}
func (discard) ReportTaskFrame(reach.ID, reach.ID)                {}
func (discard) ReportFrameLink(reach.ID, reach.ID)                {}
func (discard) ReportArrayEdge(reach.ID, reach.ID, uint64)        {}
func (discard) ReportFieldEdge(reach.ID, reach.ID, uint64)        {}
func (discard) ReportInternalEdge(reach.ID, reach.ID)             {}
func (discard) ReportOpaqueEdge(reach.ID, uint64)                 {}
