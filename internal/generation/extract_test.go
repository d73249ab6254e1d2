package generation

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		excerpts []string
		want     string
	}{
		{
			name:     "first three sentences",
			excerpts: []string{"One happened. Two followed! Was there three? Four is dropped."},
			want:     "One happened. Two followed! Was there three?",
		},
		{
			name:     "joins excerpts",
			excerpts: []string{"Lead sentence.", "  Body   sentence here.  "},
			want:     "Lead sentence. Body sentence here.",
		},
		{
			name:     "unterminated tail counts",
			excerpts: []string{"Only one. And a trailing clause"},
			want:     "Only one. And a trailing clause",
		},
		{
			name:     "punctuation runs stay together",
			excerpts: []string{"Really?! Yes... Done. Extra."},
			want:     "Really?! Yes... Done.",
		},
		{
			name:     "no excerpts",
			excerpts: nil,
			want:     UnableToGenerate,
		},
		{
			name:     "blank excerpts",
			excerpts: []string{"   ", ""},
			want:     UnableToGenerate,
		},
		{
			name:     "punctuation only",
			excerpts: []string{"... !!"},
			want:     UnableToGenerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.excerpts); got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}
