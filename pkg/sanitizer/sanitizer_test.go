package sanitizer

import "testing"

func TestSanitizeResourceID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already a slug", input: "room-a", want: "room-a"},
		{name: "spaces and capitals", input: "Alder Lake House", want: "alder-lake-house"},
		{name: "surrounding whitespace", input: "  Desk 12  ", want: "desk-12"},
		{name: "repeated separators", input: "--Room__A--", want: "room-a"},
		{name: "punctuation", input: "Room #4 (north)", want: "room-4-north"},
		{name: "non ascii dropped", input: "Salle Été", want: "salle-t"},
		{name: "empty", input: "", want: ""},
		{name: "only separators", input: " -_- ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeResourceID(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeResourceID(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := SanitizeResourceID(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeFreeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trim", input: "  dana  ", want: "dana"},
		{name: "collapse whitespace", input: "weekly\t\tsync\n\nnotes", want: "weekly sync notes"},
		{name: "drop control characters", input: "room\x00 booked\x07", want: "room booked"},
		{name: "keep unicode", input: " Café & Spa™ ", want: "Café & Spa™"},
		{name: "only whitespace", input: " \t\n ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFreeText(tt.input); got != tt.want {
				t.Errorf("SanitizeFreeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDisplayNameFromID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"meeting-room-2", "Meeting Room 2"},
		{"alder_lake", "Alder Lake"},
		{"Desk 7", "Desk 7"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DisplayNameFromID(tt.input); got != tt.want {
			t.Errorf("DisplayNameFromID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeIdempotencyKey(t *testing.T) {
	if got := SanitizeIdempotencyKey("  retry-1 \n"); got != "retry-1" {
		t.Errorf("SanitizeIdempotencyKey() = %q", got)
	}
}
