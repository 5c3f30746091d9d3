// Package runner executes compiled scenarios.
//
// Every part of a scenario gets a fresh engine which is attached to the mock
// endpoints through a transport registry. The runner then waits the execute
// delay, sends the part's requests through a transport.Sender, validates each
// synchronous reply and polls the engine until all expected messages arrived
// or the result wait time elapsed. After an optional reassertion period the
// expectations are asserted and the next part, if any, starts.
//
// Scenarios run sequentially or, with Configuration.Parallel above one, on a
// bounded errgroup. Progress goes to a Reporter.
package runner
