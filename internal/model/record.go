package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// Record is a notification retained by the cache. CacheID is assigned once
// at insertion and never reused; SourceID is the daemon id at capture time
// and is not unique over the long term.
type Record struct {
	CacheID          uint32   `json:"cached-id"`
	SourceID         uint32   `json:"id"`
	ReplacesSourceID uint32   `json:"replaces-id"`
	AppName          string   `json:"app-name"`
	AppIcon          string   `json:"app-icon"`
	Summary          string   `json:"summary"`
	Body             string   `json:"body"`
	Urgency          Urgency  `json:"urgency"`
	Actions          []Action `json:"actions"`
	ImageFile        string   `json:"image-file"`
	ImagePixmap      *Pixmap  `json:"image-pixmap"`
}

// NewRecord captures n under the given cache id. The image is taken from
// the pixmap when present, else from the file, else left empty.
func NewRecord(cacheID uint32, n Notification) Record {
	r := Record{
		CacheID:          cacheID,
		SourceID:         n.ID,
		ReplacesSourceID: n.ReplacesID,
		AppName:          n.AppName,
		AppIcon:          n.AppIcon,
		Summary:          n.Summary,
		Body:             n.Body,
		Urgency:          n.Urgency,
		Actions:          slices.Clone(n.Actions),
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}

	switch {
	case n.ImagePixmap != nil:
		px := *n.ImagePixmap
		px.Data = slices.Clone(n.ImagePixmap.Data)
		r.ImagePixmap = &px
	case n.ImageFile != "":
		r.ImageFile = n.ImageFile
	}
	return r
}

// Notification rebuilds a protocol notification from the record. Cached
// records are history, so the expiry timeout is always 0.
func (r Record) Notification() Notification {
	return Notification{
		ID:            r.SourceID,
		ReplacesID:    r.ReplacesSourceID,
		AppName:       r.AppName,
		AppIcon:       r.AppIcon,
		Summary:       r.Summary,
		Body:          r.Body,
		Urgency:       r.Urgency,
		Actions:       slices.Clone(r.Actions),
		ImagePixmap:   r.ImagePixmap,
		ImageFile:     r.ImageFile,
		ExpireTimeout: 0,
	}
}

// MarshalJSON keeps "actions" an array even for records built by hand
// with a nil slice.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	p := plain(r)
	if p.Actions == nil {
		p.Actions = []Action{}
	}
	return json.Marshal(p)
}

// Serialize returns the durable JSON object for r.
func Serialize(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// Deserialize parses one durable JSON object.
func Deserialize(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("deserialize record: %w", err)
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}
	return r, nil
}

// EncodeRecords writes records as an indented JSON array, in order.
func EncodeRecords(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// DecodeRecords parses a JSON array of records, preserving file order.
// An empty document is rejected; an empty array yields no records.
func DecodeRecords(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("decode records: empty document")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		rec, err := Deserialize(obj)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
