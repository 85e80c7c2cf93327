package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postsignal/internal/dom"
)

func firstPost(t *testing.T, body string) (*dom.Page, *dom.Element) {
	t.Helper()
	p, err := dom.ParseString("<html><body>" + body + "</body></html>")
	require.NoError(t, err)
	posts := p.QueryAll("article")
	require.NotEmpty(t, posts)
	return p, posts[0]
}

func TestHash32(t *testing.T) {
	assert.Equal(t, int32(96354), Hash32("abc"))
	assert.Equal(t, int32(99162322), Hash32("hello"))
	assert.Equal(t, int32(-728612813), Hash32("gm 🚀||0"), "astral runes hash as surrogate pairs")
	assert.Equal(t, int32(0), Hash32(""))
}

func TestResolve_StatusLink(t *testing.T) {
	_, post := firstPost(t, `<article>
		<div data-testid="tweetText">gm</div>
		<a href="/alice">profile</a>
		<a href="https://x.com/alice/status/1790000000000000001/photo/1">pic</a>
		<a href="/bob/status/42">quote</a>
	</article>`)

	assert.Equal(t, "1790000000000000001", NewResolver().Resolve(post))
}

func TestResolve_StatusLinkWithoutDigitsFallsBack(t *testing.T) {
	_, post := firstPost(t, `<article><div lang="en">some post without link</div><a href="/status/abc">x</a></article>`)
	assert.Equal(t, "post_2059074378", NewResolver().Resolve(post))
}

func TestResolve_FallbackHash(t *testing.T) {
	p, post := firstPost(t, `<article>
		<div data-testid="tweetText">  first post text  </div>
		<time datetime="2024-01-01T00:00:00.000Z">Jan 1</time>
	</article>`)
	p.SetOffsetTop(post, 120)

	r := NewResolver()
	id := r.Resolve(post)
	assert.Equal(t, "post_1492867734", id)
	assert.Equal(t, id, r.Resolve(post), "pure function of current state")

	p.Scroll(50)
	assert.NotEqual(t, id, r.Resolve(post), "fallback id moves with the viewport")
}

func TestResolve_NegativeHashIsAbsolute(t *testing.T) {
	_, post := firstPost(t, `<article><div lang="en">gm 🚀</div></article>`)
	assert.Equal(t, "post_728612813", NewResolver().Resolve(post))
}

func TestText_SelectorOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"primary selector", `<article><div lang="fr">other</div><div data-testid="tweetText"> primary </div></article>`, "primary"},
		{"lang fallback", `<article><span lang="en">from lang</span></article>`, "from lang"},
		{"class fallback", `<article><span class="css-901oao">from class</span></article>`, "from class"},
		{"empty primary skipped", `<article><div data-testid="tweetText">  </div><p lang="en">next</p></article>`, "next"},
		{"nothing", `<article><p>plain</p></article>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, post := firstPost(t, tt.body)
			assert.Equal(t, tt.want, NewResolver().Text(post))
		})
	}
}

func TestText_NFC(t *testing.T) {
	_, post := firstPost(t, "<article><div lang=\"fr\">cafe\u0301</div></article>")
	assert.Equal(t, "caf\u00e9", NewResolver().Text(post))
}
