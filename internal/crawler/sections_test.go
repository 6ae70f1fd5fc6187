package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sectionFiller = "This paragraph carries enough words to clear the minimum section size used during segmentation of real pages."

func TestSplitSectionsSemantic(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<nav><a href="/">Home</a></nav>
		<section id="intro"><h2>Intro</h2><p>` + sectionFiller + `</p></section>
		<section id="pricing"><h2>Pricing</h2><h3>Plans</h3><p>` + sectionFiller + `</p></section>
	</body></html>`

	sections := SplitSections(html, "")
	require.Len(t, sections, 2)

	assert.Equal(t, 0, sections[0].ID)
	assert.Equal(t, "intro", sections[0].Name)
	assert.Equal(t, []string{"Intro"}, sections[0].Headers)
	assert.Positive(t, sections[0].WordCount)

	assert.Equal(t, 1, sections[1].ID)
	assert.Equal(t, "pricing", sections[1].Name)
	assert.Equal(t, []string{"Pricing", "Plans"}, sections[1].Headers)
}

func TestSplitSectionsDivFallback(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div class="hero"><p>` + sectionFiller + " " + sectionFiller + `</p></div>
		<div class="features"><div class="inner"><p>` + sectionFiller + " " + sectionFiller + `</p></div></div>
	</body></html>`

	sections := SplitSections(html, "")
	require.Len(t, sections, 2)
	assert.Equal(t, "hero", sections[0].Name)
	// The nested inner div repeats its parent's text and is skipped.
	assert.Equal(t, "features", sections[1].Name)
}

func TestSplitSectionsWholePageFallback(t *testing.T) {
	t.Parallel()

	html := `<html><body><p>short page</p></body></html>`
	sections := SplitSections(html, "")
	require.Len(t, sections, 1)
	assert.Equal(t, "page", sections[0].Name)
	assert.Equal(t, "short page", sections[0].Preview)

	// Empty markup with no extracted text yields nothing to score.
	assert.Empty(t, SplitSections("", ""))
}

func TestSplitSectionsCapped(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 12; i++ {
		b.WriteString(`<section><p>` + sectionFiller + `</p></section>`)
	}
	b.WriteString("</body></html>")

	sections := SplitSections(b.String(), "")
	assert.Len(t, sections, 8)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	canon, err := NewCanonicalizer("https://shop.test/")
	require.NoError(t, err)
	base := "https://shop.test/"

	html := `<html><body>
		<header><nav><a href="/products">Products</a></nav></header>
		<main><article>
			<a href="/products/1">Widget one</a>
			<a href="/products/1#reviews">Widget one again</a>
			<a href="/">Home</a>
			<a href="/p2">x</a>
			<a href="https://elsewhere.test/away">Away</a>
			<a href="/assets/logo.png">Logo</a>
		</article></main>
		<footer><a href="/contact">Contact</a></footer>
	</body></html>`

	links := ExtractLinks(html, base, canon)
	require.Len(t, links, 3)

	byURL := make(map[string]LinkCandidate, len(links))
	for _, l := range links {
		byURL[l.URL] = l
	}

	products, ok := byURL["https://shop.test/products"]
	require.True(t, ok)
	assert.True(t, products.InHeader)
	assert.False(t, products.InMain)
	assert.Equal(t, "/products", products.Pattern)

	widget, ok := byURL["https://shop.test/products/1"]
	require.True(t, ok)
	assert.True(t, widget.InMain)
	assert.Equal(t, "Widget one", widget.AnchorText)
	assert.Equal(t, "/products/*", widget.Pattern)

	_, ok = byURL["https://shop.test/contact"]
	assert.True(t, ok)
}

func TestExtractLinksCapped(t *testing.T) {
	t.Parallel()

	canon, err := NewCanonicalizer("https://shop.test/")
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 40; i++ {
		b.WriteString(`<a href="/page-` + strings.Repeat("x", i+1) + `">Link target</a>`)
	}
	b.WriteString("</body></html>")

	links := ExtractLinks(b.String(), "https://shop.test/", canon)
	assert.Len(t, links, 30)
}
