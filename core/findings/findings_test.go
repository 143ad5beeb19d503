package findings

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFinding() Finding {
	return Finding{
		WarningType: "SQL Injection",
		WarningCode: 0,
		CheckName:   "SQL",
		Message:     "Possible SQL injection",
		Location:    Location{FilePath: "app/models/user.rb", StartLine: 12},
		Code:        `User.where("name = '#{params[:name]}'")`,
		Link:        "https://vigil-sec.dev/docs/warning_types/sql_injection/",
		Confidence:  ConfidenceHigh,
		CWE:         []int{89},
	}
}

// ---------------------------------------------------------------------------
// Fingerprint tests
// ---------------------------------------------------------------------------

func TestComputeFingerprint_Determinism(t *testing.T) {
	t.Parallel()

	loc := Location{FilePath: "app/models/user.rb", StartLine: 42}
	fp1 := ComputeFingerprint("SQL", loc, "User.find_by_sql(params[:q])")
	fp2 := ComputeFingerprint("SQL", loc, "User.find_by_sql(params[:q])")
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}

func TestComputeFingerprint_Uniqueness(t *testing.T) {
	t.Parallel()

	loc := Location{FilePath: "app/models/user.rb", StartLine: 42}
	baseline := ComputeFingerprint("SQL", loc, "code")

	tests := []struct {
		name  string
		check string
		loc   Location
		code  string
	}{
		{"different check", "Execute", loc, "code"},
		{"different file", "SQL", Location{FilePath: "app/models/post.rb", StartLine: 42}, "code"},
		{"different line", "SQL", Location{FilePath: "app/models/user.rb", StartLine: 7}, "code"},
		{"different code", "SQL", loc, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotEqual(t, baseline, ComputeFingerprint(tt.check, tt.loc, tt.code))
		})
	}
}

// ---------------------------------------------------------------------------
// Finding serialization
// ---------------------------------------------------------------------------

func TestFinding_JSONAlwaysCarriesAnalysisKey(t *testing.T) {
	f := sampleFinding()

	m, err := f.Map()
	require.NoError(t, err)

	v, ok := m["llm_analysis"]
	require.True(t, ok, "llm_analysis key must be present even when unset")
	assert.Nil(t, v)
}

func TestFinding_AddingAnalysisOnlyAddsThatField(t *testing.T) {
	f := sampleFinding()
	before, err := f.Map()
	require.NoError(t, err)

	analysis := "Extended warning description"
	f.LLMAnalysis = &analysis
	after, err := f.Map()
	require.NoError(t, err)

	assert.Equal(t, analysis, after["llm_analysis"])

	delete(before, "llm_analysis")
	delete(after, "llm_analysis")
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("existing fields changed (-before +after):\n%s", diff)
	}
}

func TestFinding_JSONKeys(t *testing.T) {
	data, err := sampleFinding().JSON()
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"fingerprint", "warning_type", "warning_code", "check_name", "message", "location", "link", "confidence"} {
		assert.Contains(t, m, key)
	}
}

func TestFinding_Analysis(t *testing.T) {
	f := sampleFinding()
	assert.Equal(t, "", f.Analysis())
	s := "text"
	f.LLMAnalysis = &s
	assert.Equal(t, "text", f.Analysis())
}

// ---------------------------------------------------------------------------
// FindingSet
// ---------------------------------------------------------------------------

func TestFindingSet_Add_ComputesFingerprint(t *testing.T) {
	fs := NewFindingSet()
	fs.Add(sampleFinding())

	require.Equal(t, 1, fs.Len())
	assert.NotEmpty(t, fs.Findings()[0].Fingerprint)
}

func TestFindingSet_Add_PreservesExistingFingerprint(t *testing.T) {
	fs := NewFindingSet()
	f := sampleFinding()
	f.Fingerprint = "custom"
	fs.Add(f)

	assert.Equal(t, "custom", fs.Findings()[0].Fingerprint)
}

func TestFindingSet_Deduplicate_KeepsFirst(t *testing.T) {
	fs := NewFindingSet()
	a := sampleFinding()
	a.Message = "first"
	b := sampleFinding()
	b.Message = "second"
	fs.Add(a)
	fs.Add(b)

	fs.Deduplicate()

	require.Equal(t, 1, fs.Len())
	assert.Equal(t, "first", fs.Findings()[0].Message)
}

func TestFindingSet_SortDeterministic(t *testing.T) {
	fs := NewFindingSet()
	weak := sampleFinding()
	weak.Confidence = ConfidenceWeak
	weak.Location.StartLine = 1
	xss := sampleFinding()
	xss.WarningType = "Cross-Site Scripting"
	xss.Location.StartLine = 2
	sql := sampleFinding()
	sql.Location.StartLine = 3

	fs.Add(weak)
	fs.Add(sql)
	fs.Add(xss)
	fs.SortDeterministic()

	got := fs.Findings()
	assert.Equal(t, "Cross-Site Scripting", got[0].WarningType)
	assert.Equal(t, 3, got[1].Location.StartLine)
	assert.Equal(t, ConfidenceWeak, got[2].Confidence)

	order := []int{got[0].Location.StartLine, got[1].Location.StartLine, got[2].Location.StartLine}
	fs.SortDeterministic()
	again := []int{fs.Findings()[0].Location.StartLine, fs.Findings()[1].Location.StartLine, fs.Findings()[2].Location.StartLine}
	assert.Equal(t, order, again)
}

func TestFindingSet_FilterConfidence(t *testing.T) {
	fs := NewFindingSet()
	for i, c := range []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceWeak} {
		f := sampleFinding()
		f.Confidence = c
		f.Location.StartLine = i + 1
		fs.Add(f)
	}

	fs.FilterConfidence(ConfidenceMedium)

	require.Equal(t, 2, fs.Len())
	for _, f := range fs.Findings() {
		assert.NotEqual(t, ConfidenceWeak, f.Confidence)
	}
}

func TestFindingSet_RemoveByCheckNames(t *testing.T) {
	fs := NewFindingSet()
	fs.Add(sampleFinding())
	other := sampleFinding()
	other.CheckName = "Execute"
	fs.Add(other)

	fs.RemoveByCheckNames([]string{"SQL"})

	require.Equal(t, 1, fs.Len())
	assert.Equal(t, "Execute", fs.Findings()[0].CheckName)
}

func TestFindingSet_RemoveFunc(t *testing.T) {
	fs := NewFindingSet()
	for i := 1; i <= 3; i++ {
		f := sampleFinding()
		f.Location.StartLine = i
		fs.Add(f)
	}

	n := fs.RemoveFunc(func(f Finding) bool { return f.Location.StartLine != 2 })

	assert.Equal(t, 2, n)
	require.Equal(t, 1, fs.Len())
	assert.Equal(t, 2, fs.Findings()[0].Location.StartLine)
}

func TestFindingSet_SetAnalysisAndAppendMessage(t *testing.T) {
	fs := NewFindingSet()
	fs.Add(sampleFinding())

	fs.SetAnalysis(0, "explained")
	fs.AppendMessage(0, "more")
	fs.SetAnalysis(5, "ignored")
	fs.AppendMessage(-1, "ignored")

	f := fs.Findings()[0]
	require.NotNil(t, f.LLMAnalysis)
	assert.Equal(t, "explained", *f.LLMAnalysis)
	assert.Equal(t, "Possible SQL injection\n\nmore", f.Message)
}

func TestFindingSet_Findings_EmptyOnNew(t *testing.T) {
	fs := NewFindingSet()
	assert.Empty(t, fs.Findings())
	assert.Equal(t, 0, fs.Len())
}

func TestParseConfidence(t *testing.T) {
	for in, want := range map[string]Confidence{"high": ConfidenceHigh, " Medium ": ConfidenceMedium, "WEAK": ConfidenceWeak, "low": ConfidenceWeak} {
		got, ok := ParseConfidence(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseConfidence("certain")
	assert.False(t, ok)
}
