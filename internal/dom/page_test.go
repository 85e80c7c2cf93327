package dom

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `<html><body>
<div id="feed">
  <article data-testid="tweet"><div data-testid="tweetText" lang="en">first $SOL</div><a href="/alice/status/111">t</a></article>
  <article data-testid="tweet"><div lang="en">second post</div></article>
</div>
</body></html>`

func mustPage(t *testing.T, src string) *Page {
	t.Helper()
	p, err := ParseString(src)
	require.NoError(t, err)
	return p
}

func TestQueryAll(t *testing.T) {
	p := mustPage(t, feed)
	posts := p.QueryAll(`[data-testid="tweet"]`)
	require.Len(t, posts, 2)
	assert.Equal(t, "article", posts[0].Tag())
	assert.Equal(t, "first $SOL", posts[0].First(`[data-testid="tweetText"]`).Text())
	assert.Nil(t, posts[1].First(`[data-testid="tweetText"]`))
}

func TestElement_AttrAndMatches(t *testing.T) {
	p := mustPage(t, feed)
	post := p.QueryAll("article")[0]

	_, ok := post.Attr("data-postsignal")
	assert.False(t, ok)

	post.SetAttr("data-postsignal", "1")
	v, ok := post.Attr("data-postsignal")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	post.SetAttr("data-postsignal", "2")
	v, _ = post.Attr("data-postsignal")
	assert.Equal(t, "2", v)

	assert.True(t, post.Matches(`[data-testid="tweet"]`))
	assert.False(t, post.Matches("div"))

	link := post.First(`a[href*="/status/"]`)
	require.NotNil(t, link)
	href, _ := link.Attr("href")
	assert.Equal(t, "/alice/status/111", href)
}

func TestAppend_NotifiesObservers(t *testing.T) {
	p := mustPage(t, feed)
	container := p.QueryAll("#feed")[0]

	var (
		mu  sync.Mutex
		got []Mutation
	)
	unsubscribe := p.Observe(func(records []Mutation) {
		mu.Lock()
		got = append(got, records...)
		mu.Unlock()
	})

	added, err := p.Append(container, `<article data-testid="tweet"><div lang="en">third</div></article>`)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.True(t, added[0].Attached())
	assert.Len(t, p.QueryAll("article"), 3)

	mu.Lock()
	require.Len(t, got, 1)
	require.Len(t, got[0].Added, 1)
	assert.True(t, got[0].Added[0].Same(added[0]))
	mu.Unlock()

	unsubscribe()
	_, err = p.Append(container, `<p>quiet</p>`)
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestInsertAfter(t *testing.T) {
	p := mustPage(t, feed)
	first := p.QueryAll("article")[0]

	added, err := p.InsertAfter(first, `<div class="postsignal-overlay">BUY</div>`)
	require.NoError(t, err)
	require.Len(t, added, 1)

	overlays := p.QueryAll(".postsignal-overlay")
	require.Len(t, overlays, 1)
	assert.Equal(t, "BUY", overlays[0].Text())

	html, err := p.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, `<a href="/alice/status/111">t</a></article><div class="postsignal-overlay">BUY</div>`)
}

func TestInsertAfter_DetachedFails(t *testing.T) {
	p := mustPage(t, feed)
	first := p.QueryAll("article")[0]
	p.Remove(first)

	_, err := p.InsertAfter(first, `<div>x</div>`)
	assert.Error(t, err)
}

func TestRemove_DetachesAndNotifies(t *testing.T) {
	p := mustPage(t, feed)
	post := p.QueryAll("article")[0]

	var removed []*Element
	p.Observe(func(records []Mutation) {
		for _, r := range records {
			removed = append(removed, r.Removed...)
		}
	})

	p.Remove(post)
	assert.False(t, post.Attached())
	assert.Equal(t, "first $SOLt", post.Text(), "detached handles keep their subtree")
	assert.Len(t, p.QueryAll("article"), 1)
	require.Len(t, removed, 1)
	assert.True(t, removed[0].Same(post))

	p.Remove(post)
	assert.Len(t, removed, 1, "removing a detached element is a no-op")
}

func TestOffsetsAndScroll(t *testing.T) {
	p := mustPage(t, feed)
	posts := p.QueryAll("article")
	assert.Zero(t, posts[0].OffsetTop())

	p.SetOffsetTop(posts[0], 120)
	p.SetOffsetTop(posts[1], 480)
	p.Scroll(100)

	assert.Equal(t, 20.0, posts[0].OffsetTop())
	assert.Equal(t, 380.0, posts[1].OffsetTop())
}

func TestRemove_DropsOffsets(t *testing.T) {
	p := mustPage(t, feed)
	posts := p.QueryAll("article")
	p.SetOffsetTop(posts[0], 120)
	p.SetOffsetTop(posts[0].First(`[data-testid="tweetText"]`), 130)
	p.SetOffsetTop(posts[1], 480)

	p.Remove(posts[0])
	assert.Len(t, p.offsets, 1)
	assert.Zero(t, posts[0].OffsetTop())
	assert.Equal(t, 480.0, posts[1].OffsetTop())
}

func TestBody(t *testing.T) {
	p := mustPage(t, "<p>hi</p>")
	body := p.Body()
	require.NotNil(t, body)
	assert.Equal(t, "body", body.Tag())
}

func TestElement_Key(t *testing.T) {
	p := mustPage(t, feed)
	a := p.QueryAll("article")
	b := p.QueryAll("article")
	assert.Equal(t, a[0].Key(), b[0].Key())
	assert.NotEqual(t, a[0].Key(), a[1].Key())

	seen := map[NodeKey]bool{a[0].Key(): true}
	assert.True(t, seen[b[0].Key()])
}
