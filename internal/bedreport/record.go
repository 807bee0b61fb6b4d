package bedreport

// HospitalRecord is one normalized row of the bed availability report.
type HospitalRecord struct {
	SrNo          string `json:"srNo"`
	Name          string `json:"name"`
	City          string `json:"city"`
	TotalBeds     int    `json:"totalBeds"`
	OccupiedBeds  int    `json:"occupiedBeds"`
	AvailableBeds int    `json:"availableBeds"`
	// LastUpdated is whatever the source printed, it is not parsed.
	LastUpdated string `json:"lastUpdated"`
	// SourceRow is the row index within the source table, the header is row 0.
	SourceRow int `json:"sourceRow"`
	// BedMismatch is set when TotalBeds - OccupiedBeds != AvailableBeds.
	BedMismatch bool `json:"bedMismatch,omitempty"`
}

type Availability string

const (
	AvailabilityPlenty  Availability = "plenty"
	AvailabilityLimited Availability = "limited"
	AvailabilityNone    Availability = "none"
)

// Availability buckets the available bed count the same way the list view colors it.
func (r HospitalRecord) Availability() Availability {
	switch {
	case r.AvailableBeds > 10:
		return AvailabilityPlenty
	case r.AvailableBeds > 0:
		return AvailabilityLimited
	default:
		return AvailabilityNone
	}
}
