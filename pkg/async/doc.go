// Package async provides a small generic Future for running a computation in
// its own goroutine and collecting its result later.
//
// A Future is obtained from Async, which starts the supplied function
// immediately. The caller can block with Await, bound the wait with
// AwaitWithTimeout, or poll with IsComplete. An expired AwaitWithTimeout does
// not stop the computation: the goroutine keeps running and the result stays
// collectable, which makes the type a good fit for best-effort side tasks
// (such as post-insert retention sweeps) that must outlive the caller's wait.
//
// # Usage
//
//	fut := async.Async(ctx, userID, func(ctx context.Context, id string) (int64, error) {
//	    return store.DeleteOldest(ctx, appID, id, keep)
//	})
//
//	removed, err := fut.AwaitWithTimeout(10 * time.Second)
//	if errors.Is(err, async.ErrTimeout) {
//	    // sweep still running in the background
//	}
//	_ = removed
package async
