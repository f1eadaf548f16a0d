package h2proto

// WriteDone is the completion handle of a write admitted into the
// engine. Callbacks registered with OnComplete run when the write
// finishes; registering after completion runs the callback at once.
//
// The engine is single-threaded per connection, so WriteDone carries
// no synchronization. Do not share a handle across goroutines.
type WriteDone struct {
	done bool
	err  error
	cbs  []func(error)
}

// NewWriteDone returns a fresh, uncompleted handle.
func NewWriteDone() *WriteDone {
	return &WriteDone{}
}

// Done reports whether the write has completed.
func (wd *WriteDone) Done() bool {
	return wd.done
}

// Err returns the completion error, nil on success or while pending.
func (wd *WriteDone) Err() error {
	return wd.err
}

// OnComplete registers cb to run at completion.
func (wd *WriteDone) OnComplete(cb func(error)) {
	if wd.done {
		cb(wd.err)
		return
	}

	wd.cbs = append(wd.cbs, cb)
}

// Complete finishes the write and fires the registered callbacks.
// Completing twice is a no-op.
func (wd *WriteDone) Complete(err error) {
	if wd.done {
		return
	}

	wd.done = true
	wd.err = err

	for _, cb := range wd.cbs {
		cb(err)
	}

	wd.cbs = nil
}

// Fail is a failed write: the caller keeps the ability to observe
// the cause through the handle.
func (wd *WriteDone) Fail(err error) *WriteDone {
	wd.Complete(err)
	return wd
}

func failedWrite(err error) *WriteDone {
	return NewWriteDone().Fail(err)
}

func succeededWrite() *WriteDone {
	wd := NewWriteDone()
	wd.Complete(nil)
	return wd
}
