package async

import "context"

// Future is the pending output of an installed adapter.
type Future[T any] struct {
	rx *Receiver[T]
	rt *routine
}

// Await suspends the calling routine until the adapter delivers. Call it only
// from the routine that created the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	o := f.rx.out
	if f.rt != nil && f.rt.park(o) {
		defer f.rt.resume()
	}
	v, err := f.rx.Recv(ctx)
	if f.rt != nil {
		f.rt.untrack(o)
	}
	return v, err
}

// Cancel abandons the future. It is the keep-alive token of adapters that
// never finish on their own, like repeat.Forever: once canceled, the adapter
// is evicted on its next tick without running.
func (f *Future[T]) Cancel() {
	f.rx.Drop()
	if f.rt != nil {
		f.rt.untrack(f.rx.out)
	}
}
