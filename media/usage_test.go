package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"image-registry/orm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingOracle struct{}

func (failingOracle) Scan(context.Context, *orm.Image) ([]string, error) {
	return nil, errors.New("oracle exploded")
}

func TestCheckImageUsage(t *testing.T) {
	ctx := t.Context()

	ingest := func(t *testing.T, env *testEnv, labels []string) string {
		t.Helper()
		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 150, 150), FileName: "usage.png",
			ContentType: "image/png", Labels: labels,
		})
		require.NoError(t, err)

		return result.Hash
	}

	t.Run("missing image reports exists=false", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		report, err := env.svc.CheckImageUsage(ctx, "no-such-hash")
		require.NoError(t, err)
		assert.False(t, report.Exists)
	})

	t.Run("saved image is found", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		hash := ingest(t, env, nil)

		report, err := env.svc.CheckImageUsage(ctx, hash)
		require.NoError(t, err)
		assert.True(t, report.Exists)
		assert.False(t, report.InUse())
	})

	t.Run("reserved labels set the featured flags", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		hash := ingest(t, env, []string{LabelHeroBanner, "gallery", LabelSeasonal})

		report, err := env.svc.CheckImageUsage(ctx, hash)
		require.NoError(t, err)
		assert.True(t, report.UsedInHeroBanner)
		assert.True(t, report.UsedInSeasonal)
		assert.ElementsMatch(t,
			[]string{LabelHeroBanner, "gallery", LabelSeasonal},
			report.UsedInLabels)
		assert.Len(t, report.Warnings, 2)
		assert.True(t, report.InUse())
	})

	t.Run("entity associations are reported", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		hash := ingest(t, env, nil)
		require.NoError(t, env.db.AddEntityRef(ctx, "product-42", hash))

		report, err := env.svc.CheckImageUsage(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, []string{"product-42"}, report.UsedInEntities)
		assert.True(t, report.InUse())
	})

	t.Run("oracle failure degrades to a warning", func(t *testing.T) {
		env := newTestEnv(t, Options{Oracles: []UsageOracle{failingOracle{}}})
		hash := ingest(t, env, nil)

		report, err := env.svc.CheckImageUsage(ctx, hash)
		require.NoError(t, err)
		assert.True(t, report.Exists)
		require.Len(t, report.Warnings, 1)
		assert.Contains(t, report.Warnings[0], "secondary usage scan failed")
	})
}

func TestFeaturedDocument(t *testing.T) {
	ctx := t.Context()

	image := &orm.Image{
		Hash: "abc",
		Variants: []orm.ImageVariant{
			{Src: "images/usage.png", SizeTag: FullSizeTag},
			{Src: "images/usage-thumb.png", SizeTag: "thumb"},
		},
	}

	writeDoc := func(t *testing.T, content string) *FeaturedDocument {
		t.Helper()
		path := filepath.Join(t.TempDir(), "featured.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		return &FeaturedDocument{Path: path}
	}

	t.Run("embedded path is detected despite prefix differences", func(t *testing.T) {
		doc := writeDoc(t, `{
			"slots": {
				"homepage": {"image": "/public/images/usage.png"},
				"sidebar": {"image": "/public/images/other.png"}
			}
		}`)

		hits, err := doc.Scan(ctx, image)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Contains(t, hits[0], "slots.homepage.image")
	})

	t.Run("missing document means no usage", func(t *testing.T) {
		doc := &FeaturedDocument{Path: filepath.Join(t.TempDir(), "absent.json")}

		hits, err := doc.Scan(ctx, image)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("malformed document is an error for the caller to downgrade", func(t *testing.T) {
		doc := writeDoc(t, "{ this is not json")

		_, err := doc.Scan(ctx, image)
		assert.Error(t, err)
	})

	t.Run("unconfigured path scans nothing", func(t *testing.T) {
		doc := &FeaturedDocument{}

		hits, err := doc.Scan(ctx, image)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
