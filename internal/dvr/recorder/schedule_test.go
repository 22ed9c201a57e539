package recorder

import "testing"

func TestParseScheduleWrapsMidnight(t *testing.T) {
	hours, err := ParseSchedule("8-17,22-6")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	want := []int{8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 22, 23, 0, 1, 2, 3, 4, 5, 6}
	if len(hours) != len(want) {
		t.Fatalf("got %d hours, want %d: %v", len(hours), len(want), hours)
	}
	for _, h := range want {
		if !InSchedule(hours, h) {
			t.Fatalf("expected hour %d in schedule", h)
		}
	}
	for _, h := range []int{18, 19, 20, 21} {
		if InSchedule(hours, h) {
			t.Fatalf("hour %d should not be scheduled", h)
		}
	}
}

func TestParseScheduleRejectsOutOfRangeHour(t *testing.T) {
	if _, err := ParseSchedule("0-24"); err == nil {
		t.Fatal("expected error for hour 24")
	}
}
