package sage

// ReserveAll attempts to reserve every request in reqs, each against the
// manager at the same index in managers. If block is
// false, this is non-blocking reserve-all-or-nothing: requests are
// reserved in order, and on the first failure every prior success is
// unreserved and the failure is returned. If block is true, the
// deadlock-free rotating-queue algorithm (C7) is used instead.
func ReserveAll(reqs []*ResourceRequest, managers []*ResourceManager, block bool, ctrl *DetachableController) error {
	if block {
		return reserveAllBlocking(reqs, managers, ctrl)
	}
	return reserveAllNonBlocking(reqs, managers)
}

func reserveAllNonBlocking(reqs []*ResourceRequest, managers []*ResourceManager) error {
	for i, req := range reqs {
		ok, err := managers[i].Reserve(req, false, nil)
		if err != nil || !ok {
			for j := 0; j < i; j++ {
				_ = managers[j].Unreserve(reqs[j])
			}
			if err != nil {
				return err
			}
			return &ResourceMismatchError{Resource: req.RequesterIdentity}
		}
	}
	return nil
}

// reserveAllBlocking implements the rotating-queue algorithm: place all
// requests in a FIFO; the head blocks, every other entry tries
// non-blocking. On a non-head failure, every outstanding reservation in
// this round is unreserved and the just-failed request becomes the new
// head, so the next round blocks on its availability instead. Each
// iteration either completes every request or changes which request
// blocks, so with fair wakeups no two callers contending for the same
// resources in different orders can deadlock each other.
func reserveAllBlocking(reqs []*ResourceRequest, managers []*ResourceManager, ctrl *DetachableController) error {
	if ctrl == nil {
		return ErrNotDetachableContext
	}
	n := len(reqs)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for {
		reservedCount := 0
		failedAt := -1

		for idx, i := range order {
			blockThis := idx == 0
			ok, err := managers[i].Reserve(reqs[i], blockThis, ctrl)
			if err != nil {
				for k := 0; k < reservedCount; k++ {
					_ = managers[order[k]].Unreserve(reqs[order[k]])
				}
				return err
			}
			if !ok {
				failedAt = idx
				break
			}
			reservedCount++
		}

		if failedAt == -1 {
			return nil
		}

		for k := 0; k < reservedCount; k++ {
			_ = managers[order[k]].Unreserve(reqs[order[k]])
		}

		// The request that just failed becomes the new head: rotate it to
		// the front so the next iteration blocks on its availability.
		failed := order[failedAt]
		rest := append(append([]int(nil), order[:failedAt]...), order[failedAt+1:]...)
		order = append([]int{failed}, rest...)
	}
}

// AcquireAll is ReserveAll followed by a single-pass acquire that
// atomically revokes each reservation and takes it. If any acquire fails
// (which should not happen absent a concurrent mismatch), every request
// reserved so far is unreserved and the error is returned; no partial
// acquisition state is observable to the caller on return.
func AcquireAll(reqs []*ResourceRequest, managers []*ResourceManager, block bool, ctrl *DetachableController) error {
	if err := ReserveAll(reqs, managers, block, ctrl); err != nil {
		return err
	}
	for i, req := range reqs {
		if _, err := managers[i].Acquire(req, false, nil); err != nil {
			for j := 0; j < len(reqs); j++ {
				if reqs[j].Status == Acquired {
					_ = managers[j].Release(reqs[j])
				} else if reqs[j].Status == Reserved {
					_ = managers[j].Unreserve(reqs[j])
				}
			}
			return err
		}
	}
	return nil
}
