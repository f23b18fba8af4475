package text

import "testing"

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello there", want: "hello there"},
		{name: "surrounding space", input: "  hi \n", want: "hi"},
		{name: "crlf", input: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "inline runs", input: "a  \t b", want: "a b"},
		{name: "blank runs", input: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "control chars", input: "a\x00b\x7Fc", want: "a b c"},
		{name: "invisible", input: "\uFEFFhel\u200Blo\u00A0world", want: "hello world"},
		{name: "paragraph separator", input: "a\u2029b", want: "a\n\nb"},
		{name: "only whitespace", input: " \n\t\n ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrimLabel(t *testing.T) {
	t.Parallel()

	labels := []string{"Me:", "Other:"}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "self label", input: "Me: sure, see you", want: "sure, see you"},
		{name: "case insensitive", input: "  me:ok", want: "ok"},
		{name: "other label", input: "Other: hi", want: "hi"},
		{name: "label mid text", input: "tell Me: later", want: "tell Me: later"},
		{name: "no label", input: "Meeting at 5", want: "Meeting at 5"},
		{name: "short input", input: "M", want: "M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TrimLabel(tt.input, labels...); got != tt.want {
				t.Errorf("TrimLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
