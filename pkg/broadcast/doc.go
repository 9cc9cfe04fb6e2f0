// Package broadcast implements the payloadless change notification used
// between the session controller, the collection controllers and any UI
// layer sitting on top of them.
//
// A Signal is a fan-out of empty wake-ups: whenever session or collection
// state changes, Notify is called and every Subscriber receives a value on
// its channel. Consumers then re-read current state through the owning
// controller's read methods. Because the notification carries no data,
// wake-ups coalesce - a subscriber that has not yet drained its channel will
// not accumulate a backlog, and Notify never blocks the mutating path.
//
//	sig := broadcast.NewSignal(1)
//	sub := sig.Subscribe(ctx)
//	go func() {
//	    for range sub.C() {
//	        render(controller.Items())
//	    }
//	}()
package broadcast
