package entity

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResolveStatus(t *testing.T) {
	start := date("2024-01-10")
	end := date("2024-01-20")

	tests := []struct {
		today string
		want  string
	}{
		{"2024-01-05", AssignmentStatusPlanned},
		{"2024-01-09", AssignmentStatusPlanned},
		{"2024-01-10", AssignmentStatusActive},
		{"2024-01-15", AssignmentStatusActive},
		{"2024-01-20", AssignmentStatusActive},
		{"2024-01-21", AssignmentStatusCompleted},
		{"2024-01-25", AssignmentStatusCompleted},
	}
	for _, tt := range tests {
		got := ResolveStatus(date(tt.today), start, end)
		if got != tt.want {
			t.Errorf("ResolveStatus(today=%s) = %s, want %s", tt.today, got, tt.want)
		}
	}
}

func TestResolveStatusSingleDay(t *testing.T) {
	d := date("2024-03-01")
	if got := ResolveStatus(d, d, d); got != AssignmentStatusActive {
		t.Errorf("single-day assignment on its date = %s, want Active", got)
	}
}

func TestDaysInclusive(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2024-01-01", "2024-01-01", 1},
		{"2024-01-01", "2024-01-31", 31},
		{"2024-02-01", "2024-03-01", 30},
	}
	for _, tt := range tests {
		if got := DaysInclusive(date(tt.start), date(tt.end)); got != tt.want {
			t.Errorf("DaysInclusive(%s, %s) = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestDatesOverlap(t *testing.T) {
	tests := []struct {
		name                   string
		start, end             string
		otherStart, otherEnd   string
		want                   bool
	}{
		{"fully inside", "2024-01-10", "2024-01-20", "2024-01-01", "2024-01-31", true},
		{"touching at end", "2024-01-01", "2024-01-10", "2024-01-10", "2024-01-20", true},
		{"touching at start", "2024-01-10", "2024-01-20", "2024-01-01", "2024-01-10", true},
		{"disjoint before", "2024-01-01", "2024-01-09", "2024-01-10", "2024-01-20", false},
		{"disjoint after", "2024-01-21", "2024-01-31", "2024-01-10", "2024-01-20", false},
	}
	for _, tt := range tests {
		got := DatesOverlap(date(tt.start), date(tt.end), date(tt.otherStart), date(tt.otherEnd))
		if got != tt.want {
			t.Errorf("%s: DatesOverlap = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRemainingDays(t *testing.T) {
	a := &ProjectAssignment{
		StartDate: date("2024-01-10"),
		EndDate:   date("2024-01-20"),
	}

	tests := []struct {
		today string
		want  int
	}{
		{"2024-01-05", 15},
		{"2024-01-10", 10},
		{"2024-01-15", 5},
		{"2024-01-20", 0},
		{"2024-01-21", 0},
	}
	for _, tt := range tests {
		if got := a.RemainingDays(date(tt.today)); got != tt.want {
			t.Errorf("RemainingDays(today=%s) = %d, want %d", tt.today, got, tt.want)
		}
	}
}
