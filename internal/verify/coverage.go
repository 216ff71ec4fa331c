package verify

import "fmt"

// checkCoverage scans the fragment bitmap after traversal and reports
// one error per maximal run of unclaimed fragments.
func (wc *walkContext) checkCoverage() error {
	var firstErr error
	for i := uint64(0); i < wc.bitmap.size(); {
		start, ok := wc.bitmap.nextClear(i)
		if !ok {
			break
		}
		end, ok := wc.bitmap.nextSet(start)
		if !ok {
			end = wc.bitmap.size()
		}

		var msg string
		if end-start == 1 {
			msg = fmt.Sprintf("fragment %d was not verified", start)
		} else {
			msg = fmt.Sprintf("fragments %d-%d were not verified", start, end-1)
		}
		wc.sess.reportError("%s", msg)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", msg, ErrMissingCoverage)
		}
		i = end
	}
	return firstErr
}
