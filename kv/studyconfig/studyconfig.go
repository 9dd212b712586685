package studyconfig

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pingcap/errors"
)

// StudyConfiguration is the metadata of one study. Version grows with every change and is used as the timestamp of
// the stored cell.
type StudyConfiguration struct {
	StudyID    uint32                 `json:"studyId"`
	StudyName  string                 `json:"studyName"`
	Version    int64                  `json:"version"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// SampleIDs numbers the samples of the study. Ids are never reused.
	SampleIDs map[string]uint32 `json:"sampleIds,omitempty"`
	// Batches records the file operations run against the study, oldest first.
	Batches []BatchFileOperation `json:"batches,omitempty"`
}

// BatchFileOperation is one load or removal of a set of files.
type BatchFileOperation struct {
	OperationName string `json:"operationName"`
	FileIDs       []int  `json:"fileIds"`
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
	// Checksum is the CRC32 of the loaded file, 0 when unknown.
	Checksum uint32 `json:"checksum,omitempty"`
}

func (c *StudyConfiguration) String() string {
	return fmt.Sprintf("study %d (%s) v%d", c.StudyID, c.StudyName, c.Version)
}

// Copy returns a deep enough copy for callers to modify.
func (c *StudyConfiguration) Copy() *StudyConfiguration {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make(map[string]interface{}, len(c.Attributes))
		for k, v := range c.Attributes {
			cp.Attributes[k] = v
		}
	}
	if c.SampleIDs != nil {
		cp.SampleIDs = make(map[string]uint32, len(c.SampleIDs))
		for k, v := range c.SampleIDs {
			cp.SampleIDs[k] = v
		}
	}
	if c.Batches != nil {
		cp.Batches = make([]BatchFileOperation, len(c.Batches))
		for i, b := range c.Batches {
			b.FileIDs = append([]int(nil), b.FileIDs...)
			cp.Batches[i] = b
		}
	}
	return &cp
}

// LoadedChecksum reports whether a file with checksum was already loaded successfully.
func (c *StudyConfiguration) LoadedChecksum(checksum uint32) bool {
	for _, b := range c.Batches {
		if b.Checksum == checksum && b.Status == BatchReady {
			return true
		}
	}
	return false
}

// RegisterSamples gives every name not yet known an id after the highest one in use, in the given order.
func (c *StudyConfiguration) RegisterSamples(names []string) {
	if c.SampleIDs == nil {
		c.SampleIDs = make(map[string]uint32, len(names))
	}
	var next uint32
	for _, id := range c.SampleIDs {
		if id >= next {
			next = id + 1
		}
	}
	for _, name := range names {
		if _, ok := c.SampleIDs[name]; !ok {
			c.SampleIDs[name] = next
			next++
		}
	}
}

// Summary maps study names to ids and back. Both directions are owned here and only change together.
type Summary struct {
	idByName map[string]uint32
	nameByID map[uint32]string
}

type summaryJSON struct {
	NameToID map[string]uint32 `json:"nameToId"`
	IDToName map[uint32]string `json:"idToName"`
}

func newSummary() *Summary {
	return &Summary{idByName: make(map[string]uint32), nameByID: make(map[uint32]string)}
}

func decodeSummary(b []byte) (*Summary, error) {
	var sj summaryJSON
	if err := json.Unmarshal(b, &sj); err != nil {
		return nil, errors.Trace(err)
	}
	s := newSummary()
	for name, id := range sj.NameToID {
		if back, ok := sj.IDToName[id]; !ok || back != name {
			return nil, errors.Errorf("summary maps %s to %d but %d back to %q", name, id, id, back)
		}
		s.idByName[name] = id
		s.nameByID[id] = name
	}
	if len(sj.IDToName) != len(sj.NameToID) {
		return nil, errors.Errorf("summary directions differ in size: %d names, %d ids", len(sj.NameToID), len(sj.IDToName))
	}
	return s, nil
}

func (s *Summary) encode() ([]byte, error) {
	return json.Marshal(summaryJSON{NameToID: s.idByName, IDToName: s.nameByID})
}

func (s *Summary) ID(name string) (uint32, bool) {
	id, ok := s.idByName[name]
	return id, ok
}

func (s *Summary) Name(id uint32) (string, bool) {
	name, ok := s.nameByID[id]
	return name, ok
}

// Names returns the registered names, sorted.
func (s *Summary) Names() []string {
	names := make([]string, 0, len(s.idByName))
	for name := range s.idByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name and id are already registered together.
func (s *Summary) Contains(name string, id uint32) bool {
	got, ok := s.idByName[name]
	return ok && got == id
}

// set registers name as the name of id. A study may be renamed, but a name cannot move to another id.
func (s *Summary) set(name string, id uint32) error {
	if other, ok := s.idByName[name]; ok && other != id {
		return &ErrConflictingStudy{Name: name, ID: id, ExistingID: other}
	}
	if old, ok := s.nameByID[id]; ok {
		delete(s.idByName, old)
	}
	s.idByName[name] = id
	s.nameByID[id] = name
	return nil
}

// ErrConflictingStudy is returned when registering a name already used by another study.
type ErrConflictingStudy struct {
	Name       string
	ID         uint32
	ExistingID uint32
}

func (e *ErrConflictingStudy) Error() string {
	return fmt.Sprintf("study name %s is registered to %d, cannot register it to %d", e.Name, e.ExistingID, e.ID)
}
