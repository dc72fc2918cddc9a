package importer

import "testing"

func TestRenderName(t *testing.T) {
	base := NameTokens{
		EventTitle: "Grand Prix 2026",
		Sport:      "motorsport",
		Season:     2026,
		AirDate:    "2026-05-03",
		Part:       2,
		PartName:   "Race",
		Quality:    "WEBDL-1080p",
	}

	tests := []struct {
		name     string
		template string
		tokens   NameTokens
		want     string
	}{
		{
			name:     "default template",
			template: "",
			tokens:   base,
			want:     "Grand Prix 2026 - Part 2 - WEBDL-1080p",
		},
		{
			name:     "empty part collapses separators",
			template: "",
			tokens: func() NameTokens {
				t := base
				t.Part = 0
				return t
			}(),
			want: "Grand Prix 2026 - WEBDL-1080p",
		},
		{
			name:     "part name and air date",
			template: "{Event Title} {Air Date} - {Part Name}",
			tokens:   base,
			want:     "Grand Prix 2026 2026-05-03 - Race",
		},
		{
			name:     "padded part number",
			template: "{Event Title} - {Part:00}",
			tokens:   base,
			want:     "Grand Prix 2026 - Part 02",
		},
		{
			name:     "colon replaced",
			template: "{Event Title}",
			tokens:   NameTokens{EventTitle: "Tour: Stage 4"},
			want:     "Tour - Stage 4",
		},
		{
			name:     "invalid characters stripped",
			template: "{Event Title}",
			tokens:   NameTokens{EventTitle: `Semi/Final? <A> vs "B"`},
			want:     "SemiFinal A vs B",
		},
		{
			name:     "unknown token drops out",
			template: "{Event Title} {Bogus}",
			tokens:   base,
			want:     "Grand Prix 2026",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderName(tt.template, tt.tokens); got != tt.want {
				t.Errorf("RenderName(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}
