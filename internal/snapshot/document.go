package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"bedwatch-backend/internal/bedreport"
)

// TimeFormat is ISO-8601 with millisecond precision, in UTC it ends with `Z`.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type HospitalDocument struct {
	bedreport.HospitalRecord
	Status bedreport.Availability `json:"status"`
}

// Document is the served and persisted representation of a snapshot, it is the only thing
// the presentation layer reads.
type Document struct {
	LastScraped string             `json:"lastScraped"`
	Hospitals   []HospitalDocument `json:"hospitals"`
}

func NewDocument(snap Snapshot) Document {
	doc := Document{
		LastScraped: snap.CapturedAt().UTC().Format(TimeFormat),
		Hospitals:   make([]HospitalDocument, 0, snap.Len()),
	}
	snap.Each(func(_ int, r bedreport.HospitalRecord) {
		doc.Hospitals = append(doc.Hospitals, NewHospitalDocument(r))
	})
	return doc
}

func NewHospitalDocument(r bedreport.HospitalRecord) HospitalDocument {
	return HospitalDocument{HospitalRecord: r, Status: r.Availability()}
}

// Snapshot validates the document and converts it back into a snapshot.
func (d Document) Snapshot() (Snapshot, error) {
	capturedAt, err := time.Parse(time.RFC3339Nano, d.LastScraped)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse lastScraped: %w", err)
	}
	if len(d.Hospitals) == 0 {
		return Snapshot{}, ErrEmptySnapshot
	}

	records := make([]bedreport.HospitalRecord, len(d.Hospitals))
	for i, h := range d.Hospitals {
		records[i] = h.HospitalRecord
	}
	return New(capturedAt, records), nil
}

// Marshal renders the document of a snapshot, indented by two spaces.
func Marshal(snap Snapshot) ([]byte, error) {
	return json.MarshalIndent(NewDocument(snap), "", "  ")
}

func Unmarshal(data []byte) (Snapshot, error) {
	var doc Document
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return Snapshot{}, err
	}
	return doc.Snapshot()
}
