// File: internal/driver/context.go
package driver

import "context"

// combineContext derives a context that is canceled when either input is.
// Values and the target attached to primary are inherited.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
