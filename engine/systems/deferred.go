package systems

/**
 * @brief A resource release gated on a GPU completion serial. The release
 * closure runs only once the GPU has provably finished every submission up
 * to and including the retire serial.
 */
type deferredEntry struct {
	retireSerial uint64
	release      func()
}

/**
 * @brief DeferredReleaseQueue is the sole mechanism by which GPU resources
 * are freed. Direct destruction cannot prove the GPU has stopped reading a
 * resource; serial comparison can.
 */
type DeferredReleaseQueue struct {
	entries []deferredEntry
}

func NewDeferredReleaseQueue() *DeferredReleaseQueue {
	return &DeferredReleaseQueue{}
}

// Enqueue records a resource release to run once the GPU completion serial
// reaches retireSerial.
func (q *DeferredReleaseQueue) Enqueue(retireSerial uint64, release func()) {
	if release == nil {
		return
	}
	q.entries = append(q.entries, deferredEntry{
		retireSerial: retireSerial,
		release:      release,
	})
}

// Collect runs every release whose retire serial has been confirmed passed.
// Returns the number of resources destroyed.
func (q *DeferredReleaseQueue) Collect(completedSerial uint64) int {
	collected := 0
	writeIdx := 0
	for _, e := range q.entries {
		if e.retireSerial <= completedSerial {
			e.release()
			collected++
		} else {
			q.entries[writeIdx] = e
			writeIdx++
		}
	}
	q.entries = q.entries[:writeIdx]
	return collected
}

// Clear runs every outstanding release regardless of serial. Only valid
// once the device is idle, during shutdown.
func (q *DeferredReleaseQueue) Clear() {
	for _, e := range q.entries {
		e.release()
	}
	q.entries = q.entries[:0]
}

// Size returns the number of pending releases.
func (q *DeferredReleaseQueue) Size() int {
	return len(q.entries)
}
