package consumer

import (
	"sync"
	"time"
)

// Progress is the last record a consumer acknowledged. The durable position
// lives in the bus; this copy is for liveness reporting.
type Progress struct {
	LastID          string    `json:"last_id"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	lk              sync.RWMutex
}

func (p *Progress) Update(id string, processedAt time.Time) {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.LastID = id
	p.LastProcessedAt = processedAt
}

func (p *Progress) Get() (string, time.Time) {
	p.lk.RLock()
	defer p.lk.RUnlock()
	return p.LastID, p.LastProcessedAt
}
