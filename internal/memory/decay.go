package memory

// DecayRates configures one decay pass. Amounts are subtracted from
// activity; entries whose activity falls below a threshold are evicted
// unless pinned or user-edited. Archive has no threshold.
type DecayRates struct {
	Situational          float64 `koanf:"situational"`
	EventLog             float64 `koanf:"event_log"`
	Archive              float64 `koanf:"archive"`
	SituationalThreshold float64 `koanf:"situational_threshold"`
	EventLogThreshold    float64 `koanf:"event_log_threshold"`
}

// DefaultDecayRates returns the standard hourly rates.
func DefaultDecayRates() DecayRates {
	return DecayRates{
		Situational:          0.01,
		EventLog:             0.005,
		Archive:              0.001,
		SituationalThreshold: 0.1,
		EventLogThreshold:    0.05,
	}
}

// DecayResult reports how many entries a pass evicted per tier.
type DecayResult struct {
	Situational int `json:"situational"`
	EventLog    int `json:"event_log"`
}

// Total returns the number of evicted entries.
func (r DecayResult) Total() int {
	return r.Situational + r.EventLog
}

// Decay ages Situational, EventLog and Archive in place and evicts stale
// entries. Active is exempt. The pass treats every entry independently, so
// entry order within a tier does not affect the outcome.
func Decay(t *Tiers, rates DecayRates) DecayResult {
	for _, e := range t.Situational {
		e.Decay(rates.Situational)
	}
	for _, e := range t.EventLog {
		e.Decay(rates.EventLog)
	}
	for _, e := range t.Archive {
		e.Decay(rates.Archive)
	}

	var res DecayResult
	t.Situational, res.Situational = evict(t.Situational, rates.SituationalThreshold)
	t.EventLog, res.EventLog = evict(t.EventLog, rates.EventLogThreshold)
	return res
}

func evict(entries []*Entry, threshold float64) ([]*Entry, int) {
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.Activity < threshold && e.Evictable() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so evicted entries can be collected.
	for i := len(kept); i < len(entries); i++ {
		entries[i] = nil
	}
	return kept, removed
}
