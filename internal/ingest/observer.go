package ingest

import "time"

// Observer receives per-item outcomes. Calls happen on the loop goroutine and
// should return quickly.
type Observer interface {
	ItemProcessed(name string, duration time.Duration)
	ItemFailed(name string, err error)
}

type observers []Observer

func (o observers) processed(name string, duration time.Duration) {
	for _, obs := range o {
		obs.ItemProcessed(name, duration)
	}
}

func (o observers) failed(name string, err error) {
	for _, obs := range o {
		obs.ItemFailed(name, err)
	}
}
