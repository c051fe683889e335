// Package testutil provides shared test helpers for stores and images.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/recordstore"
)

// PNG is a minimal payload that sniffs as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

// PNGImage returns PNG wrapped as a captured image.
func PNGImage() models.Image {
	data := make([]byte, len(PNG))
	copy(data, PNG)
	return models.Image{Data: data, MIMEType: "image/png", URI: "leaf.png"}
}

// SQLiteStore opens a record store in a temporary SQLite file that is closed
// when the test ends.
func SQLiteStore(t *testing.T) recordstore.Store {
	t.Helper()
	store, err := recordstore.New(context.Background(), recordstore.DriverSQLite, filepath.Join(t.TempDir(), "florae-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
