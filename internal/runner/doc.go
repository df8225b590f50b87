// Package runner provides the virtual user executor for vuload.
//
// A fixed pool of virtual users (VUs) runs concurrently. Each VU loops
// {request, sleep} until the run ends, so the number of outstanding requests
// never exceeds the pool size. A run ends after a duration, after a shared
// iteration budget, or when the parent context is cancelled. Stages ramp the
// active VU count and an optional limiter caps iteration starts per second.
//
// # Running
//
//	opts := runner.Options{
//		VUs:          10,
//		Duration:     time.Minute,
//		Sleep:        time.Second,
//		GracefulStop: 30 * time.Second,
//		Requester:    myRequester,
//	}
//	r := runner.New(opts)
//	result := r.Run(ctx)
//
// # Iterations
//
// Each iteration calls [Requester.Do] once:
//
//	type Requester interface {
//		Do(ctx context.Context) error
//	}
//
// A returned error marks the iteration as failed; it never stops the VU.
// The context carries a [VUInfo] readable with [VUFromContext].
//
// # Ending a Run
//
// When the duration elapses VUs stop starting iterations and cut their sleep
// short. Requests still running get GracefulStop to complete; after that, or as
// soon as the parent context is cancelled, their context is cancelled and the
// iteration is reported as interrupted.
//
// [WithLogging] reports failed requests to a [FailureLogger], and requesters
// return [*HTTPError] for responses with a status of 400 or more.
package runner
