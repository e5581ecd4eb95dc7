package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectorNodeJS(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
		want string
	}{
		{
			name: "css",
			sel:  CSS(".user-tap-button"),
			want: `document.querySelector(".user-tap-button")`,
		},
		{
			name: "xpath",
			sel:  XPath(`//button[contains(., "Claim")]`),
			want: `document.evaluate("//button[contains(., \"Claim\")]", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.NodeJS())
		})
	}
}

func TestSelectorString(t *testing.T) {
	assert.Equal(t, ".a", CSS(".a").String())
	assert.Equal(t, "xpath://b", XPath("//b").String())
}

func TestScriptsEmbedSelector(t *testing.T) {
	sel := CSS("div.main > div.loading-launch")
	for _, script := range []string{existsScript(sel), visibleScript(sel), textScript(sel)} {
		assert.True(t, strings.Contains(script, sel.NodeJS()), script)
	}
}
