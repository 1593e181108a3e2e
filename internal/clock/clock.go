package clock

import "time"

// Clock abstracts time so session expiry and post timestamps are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
