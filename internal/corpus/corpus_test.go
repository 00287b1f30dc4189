package corpus

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcticwatch/arcticwatch/internal/compare"
	"github.com/arcticwatch/arcticwatch/internal/images"
)

func capture(t *testing.T, c color.Color, marks ...image.Point) *images.Capture {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, c)
		}
	}
	for _, p := range marks {
		img.Set(p.X, p.Y, color.Black)
	}
	shot, err := images.FromImage(img, "test")
	require.NoError(t, err)
	return shot
}

func openCorpus(t *testing.T) (*Corpus, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "corpus")
	c, err := Open(dir, compare.New())
	require.NoError(t, err)
	return c, dir
}

func TestOpenValidatesArguments(t *testing.T) {
	_, err := Open("", compare.New())
	assert.Error(t, err)

	_, err = Open(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestOpenIsLazy(t *testing.T) {
	_, dir := openCorpus(t)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCountLeavesStorageUntouched(t *testing.T) {
	c, dir := openCorpus(t)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0644))
	n, err = c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	require.NoError(t, os.Remove(dir))

	_, err = c.Add(capture(t, color.White))
	require.NoError(t, err)
	n, err = c.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmptyCorpusNeverMatches(t *testing.T) {
	c, dir := openCorpus(t)

	for _, col := range []color.Color{color.White, color.Black, color.RGBA{10, 200, 30, 255}} {
		ok, err := c.AnyMatches(capture(t, col))
		require.NoError(t, err)
		assert.False(t, ok)
	}

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAddThenRedetect(t *testing.T) {
	c, _ := openCorpus(t)
	x := capture(t, color.White)

	ok, err := c.AnyMatches(x)
	require.NoError(t, err)
	require.False(t, ok)

	entry, err := c.Add(x)
	require.NoError(t, err)
	assert.FileExists(t, entry.Path)

	ok, err = c.AnyMatches(x)
	require.NoError(t, err)
	assert.True(t, ok)

	match, ok, err := c.FindMatch(x)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Name, match.Name)
}

func TestRedetectFromFreshInstance(t *testing.T) {
	c, dir := openCorpus(t)
	x := capture(t, color.White, image.Pt(3, 3))
	_, err := c.Add(x)
	require.NoError(t, err)

	reopened, err := Open(dir, compare.New())
	require.NoError(t, err)
	ok, err := reopened.AnyMatches(x)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorpusNeverShrinks(t *testing.T) {
	c, _ := openCorpus(t)
	candidates := []*images.Capture{
		capture(t, color.White),
		capture(t, color.White),
		capture(t, color.Black),
		capture(t, color.White, image.Pt(1, 1)),
		capture(t, color.Black),
	}

	prev := 0
	for _, cand := range candidates {
		ok, err := c.AnyMatches(cand)
		require.NoError(t, err)
		if !ok {
			_, err := c.Add(cand)
			require.NoError(t, err)
		}
		n, err := c.Len()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
	assert.Equal(t, 3, prev)
}

func TestEntriesAreOrderedAndFiltered(t *testing.T) {
	c, dir := openCorpus(t)
	_, err := c.Add(capture(t, color.White))
	require.NoError(t, err)
	_, err = c.Add(capture(t, color.Black))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].Name, entries[1].Name)
}

func TestUnusableContainerIsRecreated(t *testing.T) {
	c, dir := openCorpus(t)
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0644))

	ok, err := c.AnyMatches(capture(t, color.White))
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestUnreadableEntryIsSkipped(t *testing.T) {
	c, dir := openCorpus(t)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0000-broken.png"), []byte("garbage"), 0644))

	x := capture(t, color.White)
	ok, err := c.AnyMatches(x)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosest(t *testing.T) {
	c, _ := openCorpus(t)
	_, err := c.Add(capture(t, color.Black))
	require.NoError(t, err)
	near, err := c.Add(capture(t, color.White, image.Pt(0, 0), image.Pt(1, 1)))
	require.NoError(t, err)

	entry, img, stats, ok, err := c.Closest(capture(t, color.White, image.Pt(0, 0)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, near.Name, entry.Name)
	assert.NotNil(t, img)
	assert.Equal(t, 1, stats.DifferentPixels)
}

func TestClosestIgnoresOtherSizes(t *testing.T) {
	c, _ := openCorpus(t)
	_, err := c.Add(capture(t, color.White))
	require.NoError(t, err)

	other, err := images.FromImage(image.NewRGBA(image.Rect(0, 0, 5, 5)), "small")
	require.NoError(t, err)

	_, _, _, ok, err := c.Closest(other)
	require.NoError(t, err)
	assert.False(t, ok)
}
