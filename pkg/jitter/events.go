package jitter

import "github.com/pion/jitterbuffer/pkg/buffer"

// Kind identifies what a Buffer is reporting through its OnEvent callback.
type Kind int

const (
	// KindBuffer carries one or more Records released in index order,
	// either because they became contiguous or because they aged out.
	KindBuffer Kind = iota
	// KindDiscontinuity reports that one or more indices between the
	// previous release and this one were abandoned as lost.
	KindDiscontinuity
	// KindEndOfStream reports that Close released everything remaining.
	KindEndOfStream
)

// Event is delivered to the callback registered with Buffer.OnEvent.
type Event struct {
	Kind    Kind
	Records []buffer.Record

	// GapFrom and GapTo bound the skipped index range a KindDiscontinuity
	// event reports; both are zero for every other Kind.
	GapFrom uint32
	GapTo   uint32
}

// buildEvents walks a records_or_gaps[] sequence and folds it into Events:
// consecutive ItemRecords coalesce into one KindBuffer event, and each
// ItemGap becomes its own KindDiscontinuity event, so the result is
// interleaved in the same index order the store released them in.
func buildEvents(items []buffer.Item) []Event {
	var events []Event
	var run []buffer.Record

	flush := func() {
		if len(run) > 0 {
			events = append(events, Event{Kind: KindBuffer, Records: run})
			run = nil
		}
	}

	for _, it := range items {
		switch it.Kind {
		case buffer.ItemRecord:
			run = append(run, it.Record)
		case buffer.ItemGap:
			flush()
			events = append(events, Event{Kind: KindDiscontinuity, GapFrom: it.GapFrom, GapTo: it.GapTo})
		}
	}
	flush()
	return events
}
