package domain

import "time"

// DateLayout is the date format embedded in archive file names.
const DateLayout = "2006-01-02"

// CandidateFile is an archive file whose name-encoded date falls inside a query's day range
type CandidateFile struct {
	Path string    `json:"path"`
	Date time.Time `json:"date"` // UTC midnight, parsed from the file name
}

// DayRange is a time interval projected down to calendar dates (UTC).
type DayRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether date lies in [From, To], comparing calendar dates only.
func (r DayRange) Contains(date time.Time) bool {
	d := TruncateToDate(date)
	return !d.Before(r.From) && !d.After(r.To)
}

// TruncateToDate returns midnight UTC of t's UTC calendar date.
func TruncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
