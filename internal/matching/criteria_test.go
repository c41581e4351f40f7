package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperienceLevel_BandsAreContiguous(t *testing.T) {
	levels := []ExperienceLevel{LevelEntry, LevelJunior, LevelMid, LevelSenior, LevelLead}

	for years := 0; years <= 40; years++ {
		matched := 0
		for _, l := range levels {
			if l.Contains(years) {
				matched++
			}
		}
		assert.Equal(t, 1, matched, "%d years should fall in exactly one band", years)
	}
}

func TestExperienceLevel_Contains(t *testing.T) {
	tests := []struct {
		level ExperienceLevel
		years int
		want  bool
	}{
		{LevelEntry, 0, true},
		{LevelEntry, 2, true},
		{LevelEntry, 3, false},
		{LevelJunior, 3, true},
		{LevelJunior, 4, true},
		{LevelJunior, 5, false},
		{LevelMid, 5, true},
		{LevelMid, 6, true},
		{LevelSenior, 7, true},
		{LevelSenior, 8, true},
		{LevelSenior, 9, false},
		{LevelLead, 9, true},
		{LevelLead, 30, true},
		{LevelAny, 100, true},
		{ExperienceLevel(42), 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.Contains(tt.years), "%s contains %d", tt.level, tt.years)
		})
	}
}

func TestParseExperienceLevel(t *testing.T) {
	tests := []struct {
		in   string
		want ExperienceLevel
		ok   bool
	}{
		{"", LevelAny, true},
		{"any", LevelAny, true},
		{"Senior", LevelSenior, true},
		{"  lead ", LevelLead, true},
		{"principal", LevelAny, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseExperienceLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestFilterCriteria_UnknownLevelFailsClosed(t *testing.T) {
	var c FilterCriteria
	err := json.Unmarshal([]byte(`{"skills":["Go"],"experience_level":"wizard","online_only":true}`), &c)
	require.NoError(t, err)

	assert.Equal(t, LevelAny, c.ExperienceLevel)
	assert.Equal(t, []string{"Go"}, c.Skills)
	assert.True(t, c.OnlineOnly)
}

func TestFilterCriteria_NonStringLevelFailsClosed(t *testing.T) {
	var c FilterCriteria
	err := json.Unmarshal([]byte(`{"experience_level":3,"online_only":true}`), &c)
	require.NoError(t, err)
	assert.Equal(t, LevelAny, c.ExperienceLevel)
}

func TestFilterCriteria_JSONRoundTripUsesNames(t *testing.T) {
	data, err := json.Marshal(FilterCriteria{ExperienceLevel: LevelMid})
	require.NoError(t, err)
	assert.JSONEq(t, `{"experience_level":"mid","online_only":false}`, string(data))
}

func TestFilterCriteria_Normalize(t *testing.T) {
	c := FilterCriteria{
		Skills:          []string{" Go ", "go", "", "React", "  "},
		ExperienceLevel: ExperienceLevel(99),
	}.Normalize()

	assert.Equal(t, []string{"Go", "React"}, c.Skills)
	assert.Equal(t, LevelAny, c.ExperienceLevel)
}

func TestFilterCriteria_Matches(t *testing.T) {
	cand := Candidate{ID: "x", Skills: []string{"Go", "React"}, ExperienceYears: 5, Online: false}

	assert.True(t, DefaultCriteria().Matches(cand))
	assert.True(t, FilterCriteria{Skills: []string{"go", "REACT"}}.Matches(cand))
	assert.False(t, FilterCriteria{Skills: []string{"Go", "Rust"}}.Matches(cand))
	assert.True(t, FilterCriteria{ExperienceLevel: LevelMid}.Matches(cand))
	assert.False(t, FilterCriteria{ExperienceLevel: LevelSenior}.Matches(cand))
	assert.False(t, FilterCriteria{OnlineOnly: true}.Matches(cand))
}

func TestActiveFilterCount(t *testing.T) {
	tests := []struct {
		name string
		c    FilterCriteria
		want int
	}{
		{"default", DefaultCriteria(), 0},
		{"blank skills only", FilterCriteria{Skills: []string{" ", ""}}, 0},
		{"skills", FilterCriteria{Skills: []string{"Go", "Rust"}}, 1},
		{"level", FilterCriteria{ExperienceLevel: LevelJunior}, 1},
		{"explicit any", FilterCriteria{ExperienceLevel: LevelAny}, 0},
		{"unknown level", FilterCriteria{ExperienceLevel: ExperienceLevel(-3)}, 0},
		{"online", FilterCriteria{OnlineOnly: true}, 1},
		{"all", FilterCriteria{Skills: []string{"Go"}, ExperienceLevel: LevelLead, OnlineOnly: true}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ActiveFilterCount(tt.c))
			// Pure: repeated calls agree.
			assert.Equal(t, ActiveFilterCount(tt.c), ActiveFilterCount(tt.c))
		})
	}
}

func TestCriteriaHash_OrderAndCaseIndependent(t *testing.T) {
	h1 := CriteriaHash(FilterCriteria{Skills: []string{"Go", "React"}, ExperienceLevel: LevelMid})
	h2 := CriteriaHash(FilterCriteria{Skills: []string{"react", "go", "GO"}, ExperienceLevel: LevelMid})
	h3 := CriteriaHash(FilterCriteria{Skills: []string{"Go", "React"}, ExperienceLevel: LevelMid, OnlineOnly: true})

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 16)
}

func TestDecision_ParseAndText(t *testing.T) {
	for _, d := range []Decision{Pass, Like, SuperLike} {
		parsed, err := ParseDecision(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := ParseDecision("maybe")
	assert.Error(t, err)

	var d Decision
	require.NoError(t, json.Unmarshal([]byte(`"superlike"`), &d))
	assert.Equal(t, SuperLike, d)
	assert.True(t, d.IsPositive())
	assert.False(t, Pass.IsPositive())
}
