package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeedsRender(t *testing.T) {
	t.Parallel()

	listing := `<html><body><div class="result"><a class="business-name">Joe's</a>` +
		`<div class="phones">(212) 555-0100</div></div>` + strings.Repeat("<p>filler</p>", 200) + `</body></html>`

	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "empty body", status: 200, body: "  \n", want: true},
		{name: "next shell", status: 200, body: `<div id="__next"></div>`, want: true},
		{name: "angular shell", status: 200, body: `<app-root NG-VERSION="17.0.0"></app-root>`, want: true},
		{name: "script heavy small page", status: 200, body: `<html><script>var a=1;</script><p>t</p></html>`, want: true},
		{name: "unterminated script", status: 200, body: `<p>x</p><script>load(`, want: true},
		{name: "server rendered listing", status: 200, body: listing, want: false},
		{name: "not found", status: 404, body: "", want: false},
	}
	h := New(0)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.NeedsRender(tc.status, []byte(tc.body)))
		})
	}
}

func TestNewAppliesDefault(t *testing.T) {
	t.Parallel()
	require.Equal(t, DefaultSmallPage, New(-1).SmallPage)
	require.Equal(t, 512, New(512).SmallPage)
}
