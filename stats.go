package imgcache

import (
	"sync/atomic"

	"github.com/meigma/imgcache/cache"
)

// Stats is a point-in-time snapshot of service counters.
type Stats struct {
	MemoryHits     int64
	DiskHits       int64
	RemoteHits     int64
	Misses         int64
	Uploads        int64
	UploadFailures int64

	// Evictions counts memory entries dropped under capacity pressure.
	Evictions int64

	MemoryLen      int
	MemoryCapacity int
	DiskEntries    int
	DiskBytes      int64
}

type counters struct {
	memoryHits     atomic.Int64
	diskHits       atomic.Int64
	remoteHits     atomic.Int64
	misses         atomic.Int64
	uploads        atomic.Int64
	uploadFailures atomic.Int64
}

// Stats returns current counters and tier sizes. Tier figures are zero for
// injected tiers that do not report them.
func (s *Service) Stats() Stats {
	st := Stats{
		MemoryHits:     s.stats.memoryHits.Load(),
		DiskHits:       s.stats.diskHits.Load(),
		RemoteHits:     s.stats.remoteHits.Load(),
		Misses:         s.stats.misses.Load(),
		Uploads:        s.stats.uploads.Load(),
		UploadFailures: s.stats.uploadFailures.Load(),
	}
	if sz, ok := s.memory.(cache.Sizer); ok {
		st.MemoryLen = sz.Len()
	}
	if c, ok := s.memory.(interface{ Capacity() int }); ok {
		st.MemoryCapacity = c.Capacity()
	}
	if e, ok := s.memory.(interface{ Evictions() int64 }); ok {
		st.Evictions = e.Evictions()
	}
	if sz, ok := s.disk.(cache.Sizer); ok {
		st.DiskEntries = sz.Len()
	}
	if b, ok := s.disk.(interface{ SizeBytes() (int64, error) }); ok {
		if n, err := b.SizeBytes(); err == nil {
			st.DiskBytes = n
		}
	}
	return st
}
