package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDerived(t *testing.T) {
	record := &JobRecord{
		ID:    "j1",
		Title: "Backend Engineer",
		Locations: json.RawMessage(`[
			{"city": {"title": "Tehran"}, "province": {"title": "Tehran Province"}},
			{"city": {"title": "Isfahan"}}
		]`),
		WorkTypes:         json.RawMessage(`[{"title": "Full Time"}, {"title": "Remote"}]`),
		JobPostCategories: json.RawMessage(`[{"titleEn": "Software"}, {"titleFa": "نرم‌افزار"}, {"name": "Backend"}]`),
	}

	record.ComputeDerived()

	assert.Equal(t, "Tehran", record.DisplayLocation, "city of the first location wins")
	assert.Equal(t, "Full Time", record.DisplayWorkType)
	assert.Equal(t, []string{"Software", "نرم‌افزار", "Backend"}, record.DisplayCategories)
}

func TestComputeDerived_ProvinceFallback(t *testing.T) {
	record := &JobRecord{
		Locations: json.RawMessage(`[{"province": {"title": "Fars"}}]`),
	}
	record.ComputeDerived()
	assert.Equal(t, "Fars", record.DisplayLocation)
}

func TestComputeDerived_EmptyAndMalformedInput(t *testing.T) {
	record := &JobRecord{
		Locations:         json.RawMessage(`not json`),
		WorkTypes:         json.RawMessage(`[]`),
		JobPostCategories: nil,
	}
	record.ComputeDerived()

	assert.Empty(t, record.DisplayLocation)
	assert.Empty(t, record.DisplayWorkType)
	assert.Nil(t, record.DisplayCategories)
}

func TestComputeDerived_IsIdempotent(t *testing.T) {
	record := &JobRecord{
		Locations: json.RawMessage(`[{"city": {"title": "Tehran"}}]`),
		WorkTypes: json.RawMessage(`[{"title": "Full Time"}]`),
	}

	record.ComputeDerived()
	first := *record
	record.ComputeDerived()

	assert.Equal(t, first.DisplayLocation, record.DisplayLocation)
	assert.Equal(t, first.DisplayWorkType, record.DisplayWorkType)
}

func TestComputeDerived_BareStringElements(t *testing.T) {
	record := &JobRecord{
		WorkTypes:         json.RawMessage(`["Contract"]`),
		JobPostCategories: json.RawMessage(`["Software", "Backend"]`),
	}
	record.ComputeDerived()

	assert.Equal(t, "Contract", record.DisplayWorkType)
	assert.Equal(t, []string{"Software", "Backend"}, record.DisplayCategories)
}

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.False(t, RunStatusIdle.IsTerminal())
	assert.False(t, RunStatusInProgress.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusError.IsTerminal())
	assert.True(t, RunStatusStopped.IsTerminal())
}
