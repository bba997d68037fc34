package checkpoint

import (
	"time"

	"gorm.io/gorm"
)

// VersionRange keeps checkpoints whose version is within [Min, Max].
// A zero bound is open.
type VersionRange struct {
	Min int64
	Max int64
}

func (f VersionRange) Query(db *gorm.DB) *gorm.DB {
	if f.Min > 0 {
		db = db.Where("version >= ?", f.Min)
	}
	if f.Max > 0 {
		db = db.Where("version <= ?", f.Max)
	}
	return db
}

func (f VersionRange) Match(r *Record) bool {
	if f.Min > 0 && r.Version < f.Min {
		return false
	}
	if f.Max > 0 && r.Version > f.Max {
		return false
	}
	return true
}

// CreatedRange keeps checkpoints created in [After, Before). Zero times are open.
type CreatedRange struct {
	After  time.Time
	Before time.Time
}

func (f CreatedRange) Query(db *gorm.DB) *gorm.DB {
	if !f.After.IsZero() {
		db = db.Where("created_at >= ?", f.After.UnixMilli())
	}
	if !f.Before.IsZero() {
		db = db.Where("created_at < ?", f.Before.UnixMilli())
	}
	return db
}

func (f CreatedRange) Match(r *Record) bool {
	if !f.After.IsZero() && r.CreatedAtMillis < f.After.UnixMilli() {
		return false
	}
	if !f.Before.IsZero() && r.CreatedAtMillis >= f.Before.UnixMilli() {
		return false
	}
	return true
}

// LiveAt keeps checkpoints that have not expired at the given instant.
type LiveAt time.Time

func (f LiveAt) Query(db *gorm.DB) *gorm.DB {
	return liveQuery(db, time.Time(f).UnixMilli())
}

func (f LiveAt) Match(r *Record) bool {
	return !r.ExpiredAt(time.Time(f).UnixMilli())
}

// All combines filters with AND.
func All(filters ...Filter) Filter {
	return allFilter(filters)
}

type allFilter []Filter

func (f allFilter) Query(db *gorm.DB) *gorm.DB {
	for _, filter := range f {
		if filter != nil {
			db = filter.Query(db)
		}
	}
	return db
}

func (f allFilter) Match(r *Record) bool {
	for _, filter := range f {
		if filter != nil && !filter.Match(r) {
			return false
		}
	}
	return true
}

func liveQuery(db *gorm.DB, nowMillis int64) *gorm.DB {
	return db.Where("(ttl_timestamp IS NULL OR ttl_timestamp >= ?)", nowMillis)
}
