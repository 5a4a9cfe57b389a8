package prompt

import "testing"

func TestCompose(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty uses fallback", "", Fallback},
		{"blank uses fallback", "   ", Fallback},
		{"qualifier appended", "a city skyline", "a city skyline hd award-winning impressive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compose(tt.in); got != tt.want {
				t.Errorf("Compose(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
