package disk_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	"github.com/MrJamesThe3rd/almsbox/internal/proof/disk"
)

func TestStore_SaveStatOpen(t *testing.T) {
	ctx := context.Background()

	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	body := "%PDF-1.7\nreceipt"

	a, err := store.Save(ctx, "Receipt.PDF", strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(a.Locator, ".pdf"))
	assert.Equal(t, "application/pdf", a.MediaType)
	assert.Equal(t, int64(len(body)), a.Size)

	st, err := store.Stat(ctx, a.Locator)
	require.NoError(t, err)
	assert.Equal(t, a, st)

	rc, err := store.Open(ctx, a.Locator)
	require.NoError(t, err)

	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestStore_StatMissing(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Stat(context.Background(), "does-not-exist.pdf")
	assert.ErrorIs(t, err, proof.ErrNotFound)
}

func TestStore_RejectsTraversal(t *testing.T) {
	store, err := disk.New(t.TempDir())
	require.NoError(t, err)

	for _, locator := range []string{"../etc/passwd", "a/b.pdf", ".hidden", ""} {
		_, err := store.Open(context.Background(), locator)
		assert.ErrorIs(t, err, proof.ErrNotFound, locator)
	}
}
