// Package concurrent provides the asynchronous primitives used by rxhttp.
//
// Three producer kinds share one subscription contract:
//
//   - Single: exactly one value or one error
//   - Completable: completion or error, no value
//   - Publisher: zero or more values with subscriber-driven demand
//
// A producer is a recipe. Nothing runs until Subscribe is called, and every
// Subscribe runs the recipe again. The subscriber first receives a handle
// (Cancellable or Subscription), then values, then exactly one terminal signal.
//
// Every Subscribe call passes through the process-wide plugin registry
// (see AddSinglePlugin, AddCompletablePlugin, AddPublisherPlugin), which lets
// embedding code intercept subscriptions for tracing or context propagation.
package concurrent
