package files

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestStore_Path(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		rel     string
		wantErr bool
	}{
		{rel: "learners/ana.md"},
		{rel: "domains/math/skills.json"},
		{rel: "", wantErr: true},
		{rel: ".", wantErr: true},
		{rel: "..", wantErr: true},
		{rel: "../etc/passwd", wantErr: true},
		{rel: "learners/../../x", wantErr: true},
		{rel: "/etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			p, err := s.Path(tt.rel)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidPath, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(s.Root(), filepath.FromSlash(tt.rel)), p)
		})
	}
}

func TestStore_ReadWriteRemove(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read("notes/a.txt")
	assert.True(t, IsNotExist(err))
	assert.False(t, s.Exists("notes/a.txt"))

	require.NoError(t, s.Write("notes/a.txt", []byte("one")))
	require.NoError(t, s.Write("notes/a.txt", []byte("two")))
	data, err := s.Read("notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.True(t, s.Exists("notes/a.txt"))

	// no temp file is left behind
	entries, err := os.ReadDir(filepath.Join(s.Root(), "notes"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Remove("notes/a.txt"))
	assert.True(t, IsNotExist(s.Remove("notes/a.txt")))
}

func TestStore_Create(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Create("notes/a.txt", []byte("one")))
	assert.True(t, IsExist(s.Create("notes/a.txt", []byte("two"))))
	data, err := s.Read("notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	// no temp file is left behind, even by the refused create
	entries, err := os.ReadDir(filepath.Join(s.Root(), "notes"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, ErrInvalidPath, errors.Cause(s.Create("../x", nil)))
}

func TestStore_CreateConcurrent(t *testing.T) {
	s := newTestStore(t)
	const n = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := string(rune('a' + i))
			err := s.Create("learners/ana.md", []byte(body))
			if IsExist(err) {
				return
			}
			assert.NoError(t, err)
			mu.Lock()
			created = append(created, body)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, created, 1)
	data, err := s.Read("learners/ana.md")
	require.NoError(t, err)
	assert.Equal(t, created[0], string(data))
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	names, err := s.List("learners", ".md")
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, rel := range []string{"learners/ben.md", "learners/ana.md", "learners/notes.txt", "learners/.hidden.md"} {
		require.NoError(t, s.Write(rel, []byte("x")))
	}
	require.NoError(t, s.Write("domains/math/skills.json", []byte("{}")))
	require.NoError(t, s.Write("domains/art/skills.json", []byte("{}")))

	names, err = s.List("learners", ".md")
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "ben"}, names)

	dirs, err := s.ListDirs("domains")
	require.NoError(t, err)
	assert.Equal(t, []string{"art", "math"}, dirs)
}

func TestStore_Record(t *testing.T) {
	s := newTestStore(t)

	type meta struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	}
	require.NoError(t, s.WriteRecord("learners/ana.md", meta{ID: "ana", Name: "Ana"}, []byte("# Ana\n")))

	var got meta
	body, err := s.ReadRecord("learners/ana.md", &got)
	require.NoError(t, err)
	assert.Equal(t, meta{ID: "ana", Name: "Ana"}, got)
	assert.Contains(t, string(body), "# Ana")
}
