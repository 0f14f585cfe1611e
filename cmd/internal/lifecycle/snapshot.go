package lifecycle

// Snapshot is the persisted form of a Manager: an optional active record and
// the passive records in demotion order.
type Snapshot struct {
	Active  *Info
	Passive []Info
}

// IsEmpty reports whether the snapshot holds no records at all.
func (s Snapshot) IsEmpty() bool {
	return s.Active == nil && len(s.Passive) == 0
}

// Equal compares two snapshots record by record.
func (s Snapshot) Equal(o Snapshot) bool {
	if (s.Active == nil) != (o.Active == nil) {
		return false
	}
	if s.Active != nil && !s.Active.Equal(*o.Active) {
		return false
	}
	if len(s.Passive) != len(o.Passive) {
		return false
	}
	for i := range s.Passive {
		if !s.Passive[i].Equal(o.Passive[i]) {
			return false
		}
	}
	return true
}
