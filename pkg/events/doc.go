/*
Package events provides an in-memory event broker for artifact lifecycle
notifications.

The scheduler, the reconciler and the API publish events as they dispatch
rollouts, observe instance transitions, reclaim instances and requeue
artifacts. Nothing in the engine depends on an event being delivered: the
store is the source of truth and events exist for observers such as the
debug log in train serve.

# Delivery

	Publisher ──► eventCh (buffer 100) ──► broadcast loop ──► Subscriber (buffer 50)
	                                                      └──► Subscriber (buffer 50)

Publish never blocks. An event is dropped when the broker buffer is full
or the broker is stopped, and a subscriber whose own buffer is full misses
the event. Publishers are the dispatch loop and the reconciliation passes,
which must not stall on a slow observer.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(events.New(events.EventArtifactRequeued, "opsman", "rollout needs attention").
		With("build", "Failed"))

	for ev := range sub {
		fmt.Println(ev.Type, ev.ArtifactID, ev.Metadata)
	}

Components accept the Publisher interface and treat a nil Publisher as
"no events", so tests rarely need a broker.
*/
package events
