package netplay

import (
	"sync"
	"time"
)

// keepAlive fires on a fixed period until stopped.
type keepAlive struct {
	stopCh chan struct{}
	once   sync.Once
}

func startKeepAlive(period time.Duration, fire func()) *keepAlive {
	k := &keepAlive{stopCh: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fire()
			case <-k.stopCh:
				return
			}
		}
	}()
	return k
}

func (k *keepAlive) stop() {
	k.once.Do(func() { close(k.stopCh) })
}
