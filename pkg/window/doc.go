// Package window implements the windowing constructs of the stream engine. In the world of data processing on an
// unbounded stream, windowing is a concept of grouping data using temporal boundaries. We use the event time carried
// by every batch of quads to discover temporal boundaries; there are no wall-clock timers. A window closes only when
// an event with a later timestamp arrives, which is why the engine offers a sentinel flush to close the tail.
//
// A window instance is the half-open interval [open, close). All the instances of a windower share the same width,
// and successive instances are phased out by the slide. When width equals slide the windows are tumbling.
//
// Windowing is implemented as a lifecycle on every event:
//   - Scope   - materialize every instance whose interval could contain the event
//   - Route   - add the event to the instances that contain it
//   - Report  - ask the report policy which instances are eligible to emit
//   - Emit    - deliver eligible content to the subscribers, gated by the tick policy
//   - Evict   - drop the instances that reported
//
// Instances are kept sorted by their close time, so the instance that closes first is always at the head of the
// list and reports are delivered in close order.
package window
