package venue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Café de Flore":        "cafe-de-flore",
		"  Joe's Bar & Grill ": "joes-bar-grill",
		"Zürich HB":            "zurich-hb",
		"!!!":                  "",
		"Pier 39":              "pier-39",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestUniqueID(t *testing.T) {
	t.Parallel()

	taken := map[string]bool{"pier": true, "pier-2": true}
	assert.Equal(t, "pier-3", uniqueID("pier", func(id string) bool { return taken[id] }))
	assert.Equal(t, "place", uniqueID("", func(string) bool { return false }))
}

// storeContract runs the same behaviour checks against every Store.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "nowhere")
	require.ErrorIs(t, err, ErrNotFound)

	v, err := s.Create(ctx, Venue{Name: "Café Central", Lat: 48.21, Lng: 16.36})
	require.NoError(t, err)
	assert.Equal(t, "cafe-central", v.ID)
	assert.EqualValues(t, 75, v.Radius, "default radius")

	dup, err := s.Create(ctx, Venue{Name: "Cafe Central", Lat: 48.21, Lng: 16.36, Radius: 40})
	require.NoError(t, err)
	assert.Equal(t, "cafe-central-2", dup.ID)

	got, err := s.Resolve(ctx, "cafe-central-2")
	require.NoError(t, err)
	assert.Equal(t, dup, got)

	_, err = s.Create(ctx, Venue{Name: "Bad", Lat: 100, Lng: 0})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.Create(ctx, Venue{Lat: 1, Lng: 1})
	require.ErrorIs(t, err, ErrInvalid)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cafe-central", list[0].ID)

	require.NoError(t, s.Delete(ctx, "cafe-central"))
	require.ErrorIs(t, s.Delete(ctx, "cafe-central"), ErrNotFound)
	_, err = s.Resolve(ctx, "cafe-central")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "places.json")
	s, err := OpenFile(path, 75)
	require.NoError(t, err)
	storeContract(t, s)

	reopened, err := OpenFile(path, 75)
	require.NoError(t, err)
	list, err := reopened.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cafe-central-2", list[0].ID)
}

func TestFileStoreYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "places.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: pier-39
  name: Pier 39
  lat: 37.8087
  lng: -122.4098
`), 0o600))

	s, err := OpenFile(path, 90)
	require.NoError(t, err)

	v, err := s.Resolve(context.Background(), "pier-39")
	require.NoError(t, err)
	assert.EqualValues(t, 90, v.Radius)
	assert.InDelta(t, 37.8087, v.Center().Lat, 1e-9)
}

func TestFileStoreRejectsBadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	dupPath := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dupPath, []byte(`[
		{"id":"a","name":"A","lat":1,"lng":1},
		{"id":"a","name":"B","lat":2,"lng":2}
	]`), 0o600))
	_, err := OpenFile(dupPath, 90)
	require.ErrorIs(t, err, ErrInvalid)

	noID := filepath.Join(dir, "noid.json")
	require.NoError(t, os.WriteFile(noID, []byte(`[{"name":"A","lat":1,"lng":1}]`), 0o600))
	_, err = OpenFile(noID, 90)
	require.ErrorIs(t, err, ErrInvalid)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{not json`), 0o600))
	_, err = OpenFile(garbage, 90)
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(":memory:", 75)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storeContract(t, s)
}

func TestSQLiteImport(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "venues.db"), 90)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seed := []Venue{
		{ID: "pier-39", Name: "Pier 39", Lat: 37.8087, Lng: -122.4098},
		{ID: "ferry", Name: "Ferry Building", Lat: 37.7955, Lng: -122.3937, Radius: 60},
	}
	n, err := s.Import(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Import(context.Background(), seed)
	require.NoError(t, err)
	assert.Zero(t, n, "existing ids are skipped")

	v, err := s.Resolve(context.Background(), "ferry")
	require.NoError(t, err)
	assert.EqualValues(t, 60, v.Radius)
}
