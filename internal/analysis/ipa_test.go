package analysis

import "testing"

func TestExtractIPA(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "clean slash-delimited transcription",
			text:   "/aɪ sɔː sæm/",
			want:   "/aɪ sɔː sæm/",
			wantOK: true,
		},
		{
			name:   "transcription surrounded by prose",
			text:   "The IPA transcription is /ˈbʌtər/ as requested.",
			want:   "/ˈbʌtər/",
			wantOK: true,
		},
		{
			name:   "truncated output with a single opening slash",
			text:   "Sure! /aɪ sɔː sæm ˈsɪtɪŋ",
			want:   "/aɪ sɔː sæm ˈsɪtɪŋ/",
			wantOK: true,
		},
		{
			name:   "no slash at all",
			text:   "I cannot transcribe that.",
			want:   "",
			wantOK: false,
		},
		{
			name:   "empty span between slashes",
			text:   "//",
			want:   "",
			wantOK: false,
		},
		{
			name:   "multiple slash pairs span first to last",
			text:   "/aɪ/ or maybe /eɪ/",
			want:   "/aɪ/ or maybe /eɪ/",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractIPA(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractIPA() = %q, want %q", got, tt.want)
			}
		})
	}
}
