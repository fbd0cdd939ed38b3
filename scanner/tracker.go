package scanner

import (
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Tracker follows which gadgets are around across successive scans.
// A gadget that misses a scan while connected is not reported gone: it
// stops advertising once a central holds the link.
type Tracker struct {
	present *hashmap.Map[string, Sighting]
	logger  *logrus.Logger
}

func NewTracker(logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{present: hashmap.New[string, Sighting](), logger: logger}
}

// Observe records one scan's sightings and returns the addresses that
// appeared and disappeared since the previous call. connected may be nil.
func (t *Tracker) Observe(sightings []Sighting, connected func(address string) bool) (appeared, gone []string) {
	seen := make(map[string]struct{}, len(sightings))
	for _, s := range sightings {
		seen[s.Address] = struct{}{}
		if _, ok := t.present.Get(s.Address); !ok {
			appeared = append(appeared, s.Address)
			t.logger.WithFields(logrus.Fields{
				"address": s.Address,
				"name":    s.Name,
				"rssi":    s.RSSI,
			}).Info("Gadget appeared")
		}
		t.present.Set(s.Address, s)
	}

	t.present.Range(func(addr string, _ Sighting) bool {
		if _, ok := seen[addr]; ok {
			return true
		}
		if connected != nil && connected(addr) {
			return true
		}
		gone = append(gone, addr)
		return true
	})
	for _, addr := range gone {
		t.present.Del(addr)
		t.logger.WithField("address", addr).Info("Gadget gone")
	}
	return appeared, gone
}

// Present returns the addresses currently considered around.
func (t *Tracker) Present() []string {
	out := make([]string, 0, t.present.Len())
	t.present.Range(func(addr string, _ Sighting) bool {
		out = append(out, addr)
		return true
	})
	return out
}
