package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	st := &SessionState{
		Cookies: []Cookie{
			{Name: "sid", Domain: "www.gongkaoleida.com", Expires: SessionExpiry},
			{Name: "token", Domain: ".gongkaoleida.com", Expires: 1_800_000_500},
			{Name: "old", Domain: "gongkaoleida.com", Expires: 1_700_000_000},
			{Name: "cdn", Domain: "static.example.co.uk", Expires: 1_800_000_100},
			{Name: "", Domain: "ignored.test"},
		},
		Origins: []Origin{
			{Origin: "https://www.gongkaoleida.com", LocalStorage: []NameValue{{Name: "a"}, {Name: "b"}}, SessionStorage: []NameValue{{Name: "c"}}},
		},
	}

	sum := Summarize(st, now)
	assert.Equal(t, 4, sum.Cookies)
	assert.Equal(t, 1, sum.Session)
	assert.Equal(t, 1, sum.Expired)
	assert.Equal(t, 2, sum.Persistent)
	require.NotNil(t, sum.NextExpiry)
	assert.Equal(t, time.Unix(1_800_000_100, 0), *sum.NextExpiry)
	assert.Equal(t, []string{"https://www.gongkaoleida.com"}, sum.StorageOrigins)
	assert.Equal(t, 3, sum.StorageEntries)

	require.Len(t, sum.Sites, 2)
	assert.Equal(t, "example.co.uk", sum.Sites[0].Site)
	assert.Equal(t, "gongkaoleida.com", sum.Sites[1].Site)
	assert.Equal(t, 3, sum.Sites[1].Cookies)
	assert.Equal(t, 1, sum.Sites[1].Expired)
	assert.Equal(t, 1, sum.Sites[1].Session)
}

func TestSummarize_Nil(t *testing.T) {
	sum := Summarize(nil, time.Now())
	assert.Zero(t, sum.Cookies)
	assert.Nil(t, sum.Sites)
}

func TestListBackups(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"session_backup_20260101_080000.json",
		"session_backup_20261018_093015.json",
		"session.json",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600))
	}

	backups, err := ListBackups(dir)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "session_backup_20261018_093015.json", filepath.Base(backups[0].Path))
	assert.Equal(t, "session_backup_20260101_080000.json", filepath.Base(backups[1].Path))
	assert.EqualValues(t, 2, backups[0].Size)
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Nil(t, backups)
}
