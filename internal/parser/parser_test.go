package parser

import (
	"reflect"
	"testing"
)

func TestHTMLParserParse(t *testing.T) {
	p := NewHTMLParser()

	html := `<html><head><title>x</title><style>p{}</style></head>
<body><div>Hello&nbsp;there</div><p>Second   line</p><script>alert(1)</script>
<ul><li>one</li><li>two</li></ul>` + "\u200b" + `</body></html>`

	got, err := p.Parse(html)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "Hello there\nSecond line\none\ntwo"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHTMLParserEmpty(t *testing.T) {
	got, err := NewHTMLParser().Parse("   ")
	if err != nil || got != "" {
		t.Fatalf("expected empty result, got %q %v", got, err)
	}
}

func TestCodeDetector(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"keyword", "Your code is 482913.", []string{"482913"}},
		{"verification", "Use verification number: 1234 to continue", []string{"1234"}},
		{"own line", "Sign in\n\n 778899 \nThanks", []string{"778899"}},
		{"alphanumeric", "Reset code: AB12CD", []string{"AB12CD"}},
		{"word is not a code", "Promo code: SUMMER", nil},
		{"dedupe", "Your code is 5555\n5555", []string{"5555"}},
		{"none", "Lunch tomorrow?", nil},
	}

	d := NewCodeDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Detect(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
