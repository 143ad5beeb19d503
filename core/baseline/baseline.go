// Package baseline records warnings a team has reviewed and accepted so that
// later scans neither report nor explain them again. Baselines are JSON files
// keyed by finding fingerprint.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vigil-sec/vigil/core/findings"
)

const schemaVersion = "1.0.0"

// DefaultFile is the baseline location relative to the application root.
const DefaultFile = "config/vigil-baseline.json"

// Entry is one accepted warning.
type Entry struct {
	Fingerprint string              `json:"fingerprint"`
	CheckName   string              `json:"check_name"`
	WarningType string              `json:"warning_type"`
	FilePath    string              `json:"file"`
	Confidence  findings.Confidence `json:"confidence"`
	Note        string              `json:"note,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
}

// Baseline holds accepted warnings with fingerprint lookup.
type Baseline struct {
	SchemaVersion string  `json:"schema_version"`
	Entries       []Entry `json:"entries"`
	index         map[string]int
}

// Load reads a baseline file. A missing file yields an empty baseline.
func Load(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Baseline{SchemaVersion: schemaVersion, index: map[string]int{}}, nil
		}
		return nil, fmt.Errorf("reading baseline %s: %w", path, err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing baseline %s: %w", path, err)
	}
	b.buildIndex()
	return &b, nil
}

// Save writes the baseline through a temp file and rename so readers never
// see a partial file.
func (b *Baseline) Save(path string) error {
	b.SchemaVersion = schemaVersion

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling baseline: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating baseline directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming baseline file: %w", err)
	}
	return nil
}

// Match returns the live entry for f, or nil. Expired entries never match.
func (b *Baseline) Match(f findings.Finding) *Entry {
	i, ok := b.index[f.Fingerprint]
	if !ok {
		return nil
	}
	e := &b.Entries[i]
	if e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
		return nil
	}
	return e
}

// Add appends e unless an entry with the same fingerprint exists. It reports
// whether e was added.
func (b *Baseline) Add(e Entry) bool {
	if b.index == nil {
		b.buildIndex()
	}
	if _, ok := b.index[e.Fingerprint]; ok {
		return false
	}
	b.Entries = append(b.Entries, e)
	b.index[e.Fingerprint] = len(b.Entries) - 1
	return true
}

// Prune drops entries whose fingerprints are absent from current and returns
// how many were removed.
func (b *Baseline) Prune(current []findings.Finding) int {
	active := make(map[string]struct{}, len(current))
	for _, f := range current {
		active[f.Fingerprint] = struct{}{}
	}
	kept := b.Entries[:0]
	for _, e := range b.Entries {
		if _, ok := active[e.Fingerprint]; ok {
			kept = append(kept, e)
		}
	}
	removed := len(b.Entries) - len(kept)
	b.Entries = kept
	b.buildIndex()
	return removed
}

// Filter removes every finding matched by the baseline from fs and returns
// the number removed.
func (b *Baseline) Filter(fs *findings.FindingSet) int {
	if b.Len() == 0 {
		return 0
	}
	return fs.RemoveFunc(func(f findings.Finding) bool { return b.Match(f) != nil })
}

// Len returns the number of entries.
func (b *Baseline) Len() int {
	return len(b.Entries)
}

// ExpiredCount returns the number of expired entries.
func (b *Baseline) ExpiredCount() int {
	now := time.Now()
	count := 0
	for _, e := range b.Entries {
		if e.ExpiresAt != nil && now.After(*e.ExpiresAt) {
			count++
		}
	}
	return count
}

// DefaultPath returns the baseline location within an application.
func DefaultPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(DefaultFile))
}

// FromFindings creates entries for ff.
func FromFindings(ff []findings.Finding) []Entry {
	entries := make([]Entry, 0, len(ff))
	now := time.Now().UTC()
	for _, f := range ff {
		entries = append(entries, Entry{
			Fingerprint: f.Fingerprint,
			CheckName:   f.CheckName,
			WarningType: f.WarningType,
			FilePath:    f.Location.FilePath,
			Confidence:  f.Confidence,
			CreatedAt:   now,
		})
	}
	return entries
}

func (b *Baseline) buildIndex() {
	b.index = make(map[string]int, len(b.Entries))
	for i := range b.Entries {
		b.index[b.Entries[i].Fingerprint] = i
	}
}
