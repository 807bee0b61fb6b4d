package timezone

import "time"

// Location is the zone the upstream report is published in, operator facing output is
// shown in it.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// no tzdata on the host, IST has no daylight saving
		Location = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Local converts a time to the report's zone.
func Local(t time.Time) time.Time {
	return t.In(Location)
}

// Format renders a time in the report's zone for humans, `2024-01-01 11:30 IST`.
func Format(t time.Time) string {
	return Local(t).Format("2006-01-02 15:04 MST")
}
