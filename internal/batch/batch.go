// Package batch reads the YAML files the CLI and the scenario harness feed
// to the scheduler: record batches to ingest and validation request lists.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/classify"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// RecordSpec is one record as written in a batch file.
type RecordSpec struct {
	ID          string `yaml:"id"`
	Participant string `yaml:"participant"`
	Datatype    string `yaml:"datatype"`
	// Name defaults to "<id>_<datatype>.json".
	Name     string            `yaml:"name,omitempty"`
	Fields   map[string]string `yaml:"fields,omitempty"`
	Modified string            `yaml:"modified,omitempty"`
	// Status seeds the record's QC status map. Without it, ingesting keeps
	// whatever status is already stored.
	Status map[string]string `yaml:"status,omitempty"`
}

// RequestSpec is one validation request as written in a request file.
// Records makes the request explicit; otherwise Op and Dates form a
// cutoff.
type RequestSpec struct {
	Participant string   `yaml:"participant"`
	Datatype    string   `yaml:"datatype"`
	Records     []string `yaml:"records,omitempty"`
	Op          string   `yaml:"op,omitempty"`
	Dates       []string `yaml:"dates,omitempty"`
	Forward     bool     `yaml:"forward,omitempty"`
	Reset       string   `yaml:"reset,omitempty"`
}

// File is the top-level document. Either list may be empty.
type File struct {
	Records  []RecordSpec  `yaml:"records,omitempty"`
	Requests []RequestSpec `yaml:"requests,omitempty"`
}

// Load reads and strictly decodes a batch file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a batch document, rejecting unknown fields.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// Record converts the spec and resolves its effective date.
func (s RecordSpec) Record(dates classify.DateResolver) (visit.Record, error) {
	if s.ID == "" {
		return visit.Record{}, errors.New("record id is required")
	}
	if s.Participant == "" || s.Datatype == "" {
		return visit.Record{}, fmt.Errorf("record %s: participant and datatype are required", s.ID)
	}
	rec := visit.Record{
		ID:          s.ID,
		Participant: visit.ParticipantID(s.Participant),
		Datatype:    visit.Datatype(s.Datatype),
		Name:        s.Name,
		Fields:      s.Fields,
	}
	if s.Status != nil {
		rec.QCStatus = make(visit.QCStatus, len(s.Status))
	}
	if rec.Name == "" {
		rec.Name = s.ID + "_" + s.Datatype + ".json"
	}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}
	if s.Modified != "" {
		t, err := visit.ParseDate(s.Modified)
		if err != nil {
			return visit.Record{}, fmt.Errorf("record %s modified: %w", s.ID, err)
		}
		rec.Modified = t
	}
	for gear, raw := range s.Status {
		o, err := visit.ParseOutcome(raw)
		if err != nil {
			return visit.Record{}, fmt.Errorf("record %s status %s: %w", s.ID, gear, err)
		}
		rec.QCStatus[gear] = o
	}

	date, err := dates.Resolve(rec)
	if err != nil {
		return visit.Record{}, err
	}
	rec.EffectiveDate = date
	return rec, nil
}

// VisitRecords converts every record spec in order.
func (f *File) VisitRecords(dates classify.DateResolver) ([]visit.Record, error) {
	out := make([]visit.Record, 0, len(f.Records))
	for i, s := range f.Records {
		rec, err := s.Record(dates)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Request converts the spec. An empty reset string uses def.
func (s RequestSpec) Request(def visit.ResetMode) (visit.ValidationRequest, error) {
	if s.Participant == "" || s.Datatype == "" {
		return visit.ValidationRequest{}, errors.New("participant and datatype are required")
	}
	req := visit.ValidationRequest{
		Datatype:    visit.Datatype(s.Datatype),
		Participant: visit.ParticipantID(s.Participant),
		Reset:       def,
	}
	if s.Reset != "" {
		mode, err := visit.ParseResetMode(s.Reset)
		if err != nil {
			return visit.ValidationRequest{}, err
		}
		req.Reset = mode
	}

	if len(s.Records) > 0 {
		req.Selector = visit.Explicit(s.Records...)
		return req, nil
	}

	op, err := visit.ParseOp(s.Op)
	if err != nil {
		return visit.ValidationRequest{}, err
	}
	dates := make([]time.Time, len(s.Dates))
	for i, raw := range s.Dates {
		if dates[i], err = visit.ParseDate(raw); err != nil {
			return visit.ValidationRequest{}, err
		}
	}
	req.Selector = visit.Selector{Op: op, Dates: dates, Forward: s.Forward}
	return req, nil
}

// ValidationRequests converts every request spec in order.
func (f *File) ValidationRequests(def visit.ResetMode) ([]visit.ValidationRequest, error) {
	out := make([]visit.ValidationRequest, 0, len(f.Requests))
	for i, s := range f.Requests {
		req, err := s.Request(def)
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		out = append(out, req)
	}
	return out, nil
}
