package ranking

import "testing"

func TestTokens(t *testing.T) {
	norm := newNormalizer(Config{})

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits",
			input: "Project Hail Mary",
			want:  []string{"project", "hail", "mary"},
		},
		{
			name:  "strips stop words",
			input: "The Name of the Wind (Unabridged Audiobook)",
			want:  []string{"name", "wind"},
		},
		{
			name:  "ampersand becomes and then dropped as stop word",
			input: "War & Peace",
			want:  []string{"war", "peace"},
		},
		{
			name:  "apostrophes removed not split",
			input: "Ender's Game",
			want:  []string{"enders", "game"},
		},
		{
			name:  "punctuation splits tokens",
			input: "Dune: Messiah [2008] {m4b}",
			want:  []string{"dune", "messiah", "2008", "m4b"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := norm.tokens(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("tokens(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for _, w := range tt.want {
				if _, ok := got[w]; !ok {
					t.Errorf("tokens(%q) missing %q, got %v", tt.input, w, got)
				}
			}
		})
	}
}

func TestTokens_CustomStopWordsAndReplacements(t *testing.T) {
	norm := newNormalizer(Config{
		StopWords:             []string{"Series"},
		CharacterReplacements: map[string]string{"#": " number "},
	})

	got := norm.tokens("Stormlight Series #4")
	for _, w := range []string{"stormlight", "number", "4"} {
		if _, ok := got[w]; !ok {
			t.Errorf("tokens() missing %q, got %v", w, got)
		}
	}
	if _, ok := got["series"]; ok {
		t.Errorf("tokens() kept custom stop word, got %v", got)
	}
}

func TestCoverage(t *testing.T) {
	norm := newNormalizer(Config{})
	query := norm.tokens("Project Hail Mary")

	tests := []struct {
		name      string
		candidate string
		want      float64
	}{
		{"full match", "Project Hail Mary - Andy Weir [M4B]", 1.0},
		{"partial match", "Hail Mary Full of Grace", 2.0 / 3.0},
		{"no match", "Something Else Entirely", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coverage(query, norm.tokens(tt.candidate))
			if got != tt.want {
				t.Errorf("coverage() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := coverage(map[string]struct{}{}, query); got != 0 {
		t.Errorf("coverage(empty query) = %v, want 0", got)
	}
}

func TestContainsAuthorToken(t *testing.T) {
	norm := newNormalizer(Config{})

	tests := []struct {
		name      string
		author    string
		candidate string
		want      bool
	}{
		{"surname present", "Andy Weir", "Project Hail Mary by Andy Weir", true},
		{"author absent", "Andy Weir", "Project Hail Mary", false},
		{"initials too short to match", "J K", "J K Something", false},
		{"surname alone suffices", "Brandon Sanderson", "Mistborn Sanderson m4b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := containsAuthorToken(norm.tokens(tt.author), norm.tokens(tt.candidate))
			if got != tt.want {
				t.Errorf("containsAuthorToken(%q, %q) = %v, want %v",
					tt.author, tt.candidate, got, tt.want)
			}
		})
	}
}
