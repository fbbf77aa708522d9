package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestGetText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<div>hello <b>there</b><span> world</span></div>`,
	))
	require.NoError(t, err)
	require.Equal(t, "hello there world", GetText(doc))
}

func TestClipTag(t *testing.T) {
	body := `<html><form id="challenge" method="post">
		<input id="challengeId" value="42">
	</form><footer></footer></html>`

	clipped := ClipTag(body, `<form id="challenge"`, "</form>")
	require.Contains(t, clipped, `challengeId`)
	require.NotContains(t, clipped, "footer")
}

func TestClipTagMissingClose(t *testing.T) {
	body := `<form id="challenge"><input id="gxf" value="x">`
	clipped := ClipTag(body, `<form id="challenge"`, "</form>")
	require.Contains(t, clipped, `id="gxf"`)
}

func TestClipTagMissingOpen(t *testing.T) {
	require.Equal(t, "", ClipTag("<div></div>", `<form id="challenge"`, "</form>"))
}

func TestInputValue(t *testing.T) {
	fragment := `<form>
		<input id="challengeId" value="42">
		<input id="challengeType" value="9">
		<input id="gxf" value=":tok.">
	</form>`

	require.Equal(t, "42", InputValue(fragment, "challengeId"))
	require.Equal(t, "9", InputValue(fragment, "challengeType"))
	require.Equal(t, ":tok.", InputValue(fragment, "gxf"))
	require.Equal(t, "", InputValue(fragment, "missing"))
}

func TestInputValueMalformed(t *testing.T) {
	// missing closing form tag
	require.Equal(t, "42", InputValue(`<form><input id="challengeId" value="42">`, "challengeId"))
	require.Equal(t, "", InputValue("", "challengeId"))
	require.NotPanics(t, func() {
		InputValue("<<<>><input<", "challengeId")
	})
}

func TestSingleQuoted(t *testing.T) {
	body := `<script>var el = byId("secTok"); el.value = 'abc.def'; </script>
		id="timeStmp" = 'now'`

	require.Equal(t, "abc.def", SingleQuoted(body, `"secTok"`))
	require.Equal(t, "now", SingleQuoted(body, `id="timeStmp"`))
	require.Equal(t, "", SingleQuoted(body, `id="absent"`))
	require.Equal(t, "", SingleQuoted(`id="secTok" no quotes here`, `id="secTok"`))
	require.Equal(t, "", SingleQuoted(`id="secTok" = 'unterminated`, `id="secTok"`))
}
