package archiver

import (
	"archive/zip"
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/archiver/internal/adapters/billyfs"
	"github.com/mcdonaldj/archiver/internal/mocks"
	"github.com/mcdonaldj/archiver/internal/ports"
)

func newMocked(t *testing.T) (*Archiver, *mocks.MockFileSystem, *mocks.MockFinder, *mocks.MockRepository) {
	t.Helper()
	fs := mocks.NewMockFileSystem()
	finder := mocks.NewMockFinder()
	repo := mocks.NewMockRepository()
	a := New(WithFileSystem(fs), WithFinder(finder))
	return a, fs, finder, repo
}

func writeFiles(t *testing.T, bfs billy.Filesystem, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, util.WriteFile(bfs, name, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, bfs billy.Filesystem, name string) string {
	t.Helper()
	data, err := util.ReadFile(bfs, name)
	require.NoError(t, err)
	return string(data)
}

func TestMakeCreatesParentDirectory(t *testing.T) {
	a, fs, _, repo := newMocked(t)

	require.NoError(t, a.MakeWith("/work/out/site.zip", repo))

	require.Len(t, fs.MkdirCalls, 1)
	assert.Equal(t, "/work/out", fs.MkdirCalls[0].Path)
	assert.Equal(t, ports.DefaultArchiveDirMode, fs.MkdirCalls[0].Perm)
	require.Len(t, repo.OpenCalls, 1)
	assert.Equal(t, mocks.OpenCall{Path: "/work/out/site.zip", Create: true}, repo.OpenCalls[0])
	assert.True(t, a.IsOpen())
	assert.Equal(t, "/work/out/site.zip", a.FilePath())
	assert.Equal(t, "*mocks.MockRepository", a.ArchiveType())
	assert.Same(t, repo, a.Repository())
}

func TestMakeOpensExistingArchive(t *testing.T) {
	a, fs, _, repo := newMocked(t)
	fs.Files["/work/site.zip"] = []byte("PK")

	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	assert.Empty(t, fs.MkdirCalls)
	assert.Equal(t, mocks.OpenCall{Path: "/work/site.zip", Create: false}, repo.OpenCalls[0])
}

func TestMakeErrors(t *testing.T) {
	t.Run("parent cannot be created", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		fs.Errors["/locked"] = os.ErrPermission

		err := a.MakeWith("/locked/site.zip", repo)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ports.ErrDirectoryCreate))
		assert.True(t, errors.Is(err, os.ErrPermission))
		assert.Empty(t, repo.OpenCalls)
		assert.False(t, a.IsOpen())
	})

	t.Run("parent not writable", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		fs.Dirs["/ro"] = 0o555
		fs.ReadOnly["/ro"] = true

		err := a.MakeWith("/ro/site.zip", repo)
		assert.True(t, errors.Is(err, ports.ErrNotWritable))
		assert.Empty(t, repo.OpenCalls)
	})

	t.Run("repository refuses to open", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		fs.Files["/work/broken.zip"] = []byte("junk")
		repo.Errors["Open"] = ports.ErrArchiveOpen

		err := a.MakeWith("/work/broken.zip", repo)
		assert.True(t, errors.Is(err, ports.ErrArchiveOpen))
		assert.False(t, a.IsOpen())
		assert.Empty(t, a.FilePath())
	})

	t.Run("unknown format touches nothing", func(t *testing.T) {
		a, fs, _, _ := newMocked(t)

		err := a.Make("/work/site.rar", "rar")
		assert.True(t, errors.Is(err, ports.ErrUnknownFormat))
		assert.Empty(t, fs.MkdirCalls)
	})
}

func TestMakeClosesPreviousArchive(t *testing.T) {
	a, _, _, first := newMocked(t)
	second := mocks.NewMockRepository()

	require.NoError(t, a.MakeWith("/work/one.zip", first))
	require.NoError(t, a.MakeWith("/work/two.zip", second))

	assert.Equal(t, 1, first.CloseCalls)
	assert.Equal(t, 0, second.CloseCalls)
	assert.Equal(t, "/work/two.zip", a.FilePath())
}

func TestOperationsRequireOpenArchive(t *testing.T) {
	a, _, _, _ := newMocked(t)

	_, err := a.FileContent("a.txt")
	assert.True(t, errors.Is(err, ports.ErrNotOpen))
	assert.True(t, errors.Is(a.Add("/src/a.txt"), ports.ErrNotOpen))
	assert.True(t, errors.Is(a.ExtractTo("/dest", nil, Blacklist), ports.ErrNotOpen))
	assert.True(t, errors.Is(a.Remove("a.txt"), ports.ErrNotOpen))
	assert.True(t, errors.Is(a.RemoveMatching([]string{"a"}), ports.ErrNotOpen))
	_, err = a.Entries()
	assert.True(t, errors.Is(err, ports.ErrNotOpen))

	assert.False(t, a.Contains("a.txt"))
	assert.Equal(t, ports.StatusClosed, a.Status())
}

func TestCloseTwice(t *testing.T) {
	a, _, _, repo := newMocked(t)
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())
	assert.Empty(t, a.FilePath())
	assert.Empty(t, a.ArchiveType())

	require.NoError(t, a.Close())
	assert.Equal(t, 1, repo.CloseCalls)
}

func TestCloseReportsFlushError(t *testing.T) {
	a, _, _, repo := newMocked(t)
	require.NoError(t, a.MakeWith("/work/site.zip", repo))
	repo.Errors["Close"] = os.ErrClosed

	assert.ErrorIs(t, a.Close(), os.ErrClosed)
	assert.False(t, a.IsOpen())
}

func TestDeleteRemovesArchiveFile(t *testing.T) {
	a, fs, _, repo := newMocked(t)
	fs.Files["/work/site.zip"] = []byte("PK")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	require.NoError(t, a.Delete())

	assert.Equal(t, 1, repo.CloseCalls)
	assert.Equal(t, []string{"/work/site.zip"}, fs.Removed)
	assert.False(t, fs.Exists("/work/site.zip"))
	assert.False(t, a.IsOpen())
}

func TestAddFileUsesBaseNameUnderFolder(t *testing.T) {
	a, fs, _, repo := newMocked(t)
	fs.Files["/src/deep/readme.txt"] = []byte("hello")
	repo.Sources["/src/deep/readme.txt"] = []byte("hello")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	a.Folder("docs")
	require.NoError(t, a.Add("/src/deep/readme.txt"))
	a.Home()

	assert.Equal(t, []mocks.AddCall{{Source: "/src/deep/readme.txt", Name: "docs/readme.txt"}}, repo.AddCalls)
	names, err := a.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/readme.txt"}, names)
}

func TestAddKeepsNamesUnchanged(t *testing.T) {
	decomposed := "cafe\u0301.txt"

	t.Run("decomposed unicode", func(t *testing.T) {
		for _, format := range []string{"zip", "phar"} {
			t.Run(format, func(t *testing.T) {
				bfs := memfs.New()
				writeFiles(t, bfs, map[string]string{"/in/" + decomposed: "latte"})
				a := New(WithStorage(bfs))
				archive := "/out/names." + format

				require.NoError(t, a.Make(archive, format))
				a.Folder("menu")
				require.NoError(t, a.Add("/in/"+decomposed))
				a.Home()
				require.NoError(t, a.Close())

				require.NoError(t, a.Make(archive, format))
				defer a.Close()

				name := "menu/" + decomposed
				names, err := a.Entries()
				require.NoError(t, err)
				assert.Equal(t, []string{name}, names)
				assert.True(t, a.Contains(name))
				content, err := a.FileContent(name)
				require.NoError(t, err)
				assert.Equal(t, "latte", string(content))

				require.NoError(t, a.ExtractTo("/dest", []string{name}, Whitelist))
				assert.Equal(t, "latte", readFile(t, bfs, "/dest/"+name))

				require.NoError(t, a.Remove(name))
				assert.False(t, a.Contains(name))
			})
		}
	})

	t.Run("backslash in file name", func(t *testing.T) {
		bfs := memfs.New()
		writeFiles(t, bfs, map[string]string{`/in/a\b.txt`: "slash"})
		a := New(WithStorage(bfs))
		require.NoError(t, a.Zip("/out/names.zip"))
		defer a.Close()

		require.NoError(t, a.Add(`/in/a\b.txt`))

		names, err := a.Entries()
		require.NoError(t, err)
		assert.Equal(t, []string{`a\b.txt`}, names)
		assert.True(t, a.Contains(`a\b.txt`))
		assert.False(t, a.Contains("a/b.txt"))
		content, err := a.FileContent(`a\b.txt`)
		require.NoError(t, err)
		assert.Equal(t, "slash", string(content))

		require.NoError(t, a.ExtractTo("/dest", nil, Blacklist))
		assert.Equal(t, "slash", readFile(t, bfs, `/dest/a\b.txt`))
		_, err = bfs.Stat("/dest/a")
		assert.True(t, os.IsNotExist(err), "no directory is made up from the backslash")
	})
}

func TestAddDirectoryRestoresFolder(t *testing.T) {
	a, fs, finder, repo := newMocked(t)
	fs.Dirs["/project"] = 0o755
	finder.Trees["/project"] = []ports.FoundFile{
		{Path: "/project/.git/HEAD", RelPath: ".git/HEAD", RelDir: ".git"},
		{Path: "/project/README.txt", RelPath: "README.txt", RelDir: ""},
		{Path: "/project/src/lib/main.txt", RelPath: "src/lib/main.txt", RelDir: "src/lib"},
	}
	for _, f := range finder.Trees["/project"] {
		repo.Sources[f.Path] = []byte(f.RelPath)
	}
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	a.Folder("vendor")
	require.NoError(t, a.Add("/project"))

	assert.Equal(t, "vendor", a.CurrentFolder())
	assert.Equal(t, []string{".git/HEAD", "README.txt", "src/lib/main.txt"}, repo.Order)
}

func TestAddPropagatesErrors(t *testing.T) {
	t.Run("walk failure", func(t *testing.T) {
		a, _, finder, repo := newMocked(t)
		finder.Errors["/missing"] = os.ErrNotExist
		require.NoError(t, a.MakeWith("/work/site.zip", repo))

		a.Folder("keep")
		err := a.Add("/missing")
		assert.True(t, errors.Is(err, ports.ErrSourceUnreadable))
		assert.True(t, errors.Is(err, os.ErrNotExist))
		assert.Equal(t, "keep", a.CurrentFolder())
	})

	t.Run("unreadable source", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		fs.Files["/src/a.txt"] = []byte("a")
		require.NoError(t, a.MakeWith("/work/site.zip", repo))

		err := a.Add("/src/a.txt")
		assert.True(t, errors.Is(err, ports.ErrSourceUnreadable))
	})
}

func TestFileContentMissingEntry(t *testing.T) {
	a, _, _, repo := newMocked(t)
	require.NoError(t, a.MakeWith("/work/new.zip", repo))

	_, err := a.FileContent("nothing.txt")
	assert.True(t, errors.Is(err, ports.ErrEntryNotFound))
}

func TestEntrySize(t *testing.T) {
	t.Run("streamed without a sizer", func(t *testing.T) {
		a, _, _, repo := newMocked(t)
		repo.Put("a.txt", "hello")
		require.NoError(t, a.MakeWith("/work/site.zip", repo))

		size, err := a.EntrySize("a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(5), size)

		_, err = a.EntrySize("missing.txt")
		assert.ErrorIs(t, err, ports.ErrEntryNotFound)

		repo.Errors["FileStream"] = os.ErrPermission
		_, err = a.EntrySize("a.txt")
		assert.ErrorIs(t, err, os.ErrPermission)
	})

	t.Run("from archive metadata", func(t *testing.T) {
		for _, format := range []string{"zip", "phar"} {
			t.Run(format, func(t *testing.T) {
				bfs := memfs.New()
				writeFiles(t, bfs, map[string]string{"/in/a.txt": "twelve bytes"})
				a := New(WithStorage(bfs))
				require.NoError(t, a.Make("/out/a."+format, format))
				require.NoError(t, a.Add("/in/a.txt"))

				size, err := a.EntrySize("a.txt")
				require.NoError(t, err)
				assert.Equal(t, int64(12), size)

				require.NoError(t, a.Close())
				require.NoError(t, a.Make("/out/a."+format, format))
				defer a.Close()
				size, err = a.EntrySize("a.txt")
				require.NoError(t, err)
				assert.Equal(t, int64(12), size)
			})
		}
	})

	t.Run("not open", func(t *testing.T) {
		_, err := New(WithStorage(memfs.New())).EntrySize("a.txt")
		assert.ErrorIs(t, err, ports.ErrNotOpen)
	})
}

func TestContainsAgreesWithFileContent(t *testing.T) {
	a, _, _, repo := newMocked(t)
	repo.Put("a.txt", "a")
	repo.Put("docs/b.txt", "b")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	for _, name := range []string{"a.txt", "docs/b.txt", "docs/", "b.txt", ""} {
		_, err := a.FileContent(name)
		assert.Equal(t, err == nil, a.Contains(name), name)
	}
}

func TestRemove(t *testing.T) {
	a, _, _, repo := newMocked(t)
	repo.Put("a/b.txt", "b")
	repo.Put("a/c/d.txt", "d")
	repo.Put("ab.txt", "ab")
	repo.Put("z.txt", "z")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	require.NoError(t, a.Remove("missing.txt"))
	require.NoError(t, a.RemoveMatching([]string{"a/"}))

	assert.False(t, a.Contains("a/b.txt"))
	assert.False(t, a.Contains("a/c/d.txt"))
	assert.True(t, a.Contains("ab.txt"))
	assert.True(t, a.Contains("z.txt"))
}

func TestFolderPointer(t *testing.T) {
	a := New()

	assert.Empty(t, a.InternalPath())
	assert.Equal(t, "docs/api", a.Folder("/docs/api/").CurrentFolder())
	assert.Equal(t, "docs/api/", a.InternalPath())
	assert.Empty(t, a.Home().InternalPath())
}

func TestExtractSelection(t *testing.T) {
	entries := []string{"README.txt", "docs/guide.txt", "docs/api/ref.txt", "docsite/index.txt", "src/main.txt"}

	tests := []struct {
		name    string
		folder  string
		filters []string
		mode    Mode
		want    map[string]string
	}{
		{
			name: "blacklist without filters extracts everything",
			mode: Blacklist,
			want: map[string]string{
				"/dest/README.txt":        "README.txt",
				"/dest/docs/guide.txt":    "docs/guide.txt",
				"/dest/docs/api/ref.txt":  "docs/api/ref.txt",
				"/dest/docsite/index.txt": "docsite/index.txt",
				"/dest/src/main.txt":      "src/main.txt",
			},
		},
		{
			name:    "blacklist skips matching prefixes",
			filters: []string{"src", "docs/api"},
			mode:    Blacklist,
			want: map[string]string{
				"/dest/README.txt":        "README.txt",
				"/dest/docs/guide.txt":    "docs/guide.txt",
				"/dest/docsite/index.txt": "docsite/index.txt",
			},
		},
		{
			name: "whitelist without filters extracts nothing",
			mode: Whitelist,
			want: map[string]string{},
		},
		{
			name:    "whitelist keeps matching prefixes",
			filters: []string{"docs/"},
			mode:    Whitelist,
			want: map[string]string{
				"/dest/docs/guide.txt":   "docs/guide.txt",
				"/dest/docs/api/ref.txt": "docs/api/ref.txt",
			},
		},
		{
			name:   "folder scope strips the folder",
			folder: "docs",
			mode:   Blacklist,
			want: map[string]string{
				"/dest/guide.txt":         "docs/guide.txt",
				"/dest/api/ref.txt":       "docs/api/ref.txt",
				"/dest/docsite/index.txt": "docsite/index.txt",
			},
		},
		{
			name:    "blacklist in folder compares the bare entry path",
			folder:  "docs",
			filters: []string{"docs/api"},
			mode:    Blacklist,
			want: map[string]string{
				"/dest/guide.txt":         "docs/guide.txt",
				"/dest/docsite/index.txt": "docsite/index.txt",
			},
		},
		{
			name:    "whitelist in folder compares the prefixed entry path",
			folder:  "docs",
			filters: []string{"docs/docs/api"},
			mode:    Whitelist,
			want: map[string]string{
				"/dest/api/ref.txt": "docs/api/ref.txt",
			},
		},
		{
			name:    "unknown mode behaves as blacklist",
			filters: []string{"docs", "src"},
			mode:    Mode(7),
			want: map[string]string{
				"/dest/README.txt": "README.txt",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fs, _, repo := newMocked(t)
			for _, name := range entries {
				repo.Put(name, name)
			}
			require.NoError(t, a.MakeWith("/work/site.zip", repo))
			a.Folder(tt.folder)

			require.NoError(t, a.ExtractTo("/dest", tt.filters, tt.mode))

			got := map[string]string{}
			for path, data := range fs.Files {
				got[path] = string(data)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCreatesDirectories(t *testing.T) {
	a, fs, _, repo := newMocked(t)
	repo.Put("empty/", "")
	repo.Put("nested/deep/file.txt", "x")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	require.NoError(t, a.ExtractTo("/dest", nil, Blacklist))

	assert.Contains(t, fs.Dirs, "/dest")
	assert.Contains(t, fs.Dirs, "/dest/empty")
	assert.Contains(t, fs.Dirs, "/dest/nested/deep")
	assert.NotContains(t, fs.Files, "/dest/empty")
	assert.Equal(t, ports.DefaultArchiveDirMode, fs.Dirs["/dest/nested/deep"])
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	a, fs, _, repo := newMocked(t)
	repo.Put("../evil.txt", "x")
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	err := a.ExtractTo("/dest", nil, Blacklist)
	assert.True(t, errors.Is(err, ports.ErrUnsafePath))
	assert.NotContains(t, fs.Files, "/evil.txt")
}

func TestExtractPropagatesErrors(t *testing.T) {
	t.Run("destination cannot be created", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		fs.Errors["/dest"] = os.ErrPermission
		require.NoError(t, a.MakeWith("/work/site.zip", repo))

		err := a.ExtractTo("/dest", nil, Blacklist)
		assert.True(t, errors.Is(err, ports.ErrDirectoryCreate))
	})

	t.Run("write failure", func(t *testing.T) {
		a, fs, _, repo := newMocked(t)
		repo.Put("a.txt", "a")
		fs.Errors["/dest/a.txt"] = os.ErrPermission
		require.NoError(t, a.MakeWith("/work/site.zip", repo))

		err := a.ExtractTo("/dest", nil, Blacklist)
		assert.ErrorIs(t, err, os.ErrPermission)
	})
}

func TestExtractDirMode(t *testing.T) {
	fs := mocks.NewMockFileSystem()
	repo := mocks.NewMockRepository()
	repo.Put("a/b.txt", "b")
	a := New(WithFileSystem(fs), WithExtractDirMode(0o700), WithArchiveDirMode(0o750))
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	require.NoError(t, a.ExtractTo("/dest", nil, Blacklist))

	assert.Equal(t, os.FileMode(0o750), fs.Dirs["/work"])
	assert.Equal(t, os.FileMode(0o700), fs.Dirs["/dest/a"])
}

func TestZeroExtractModeUsesFileSystemDefault(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	fs := billyfs.NewLocal().WithDirMode(0o700)
	a := New(WithStorage(fs.Unwrap()), WithFileSystem(fs), WithExtractDirMode(0))
	require.NoError(t, a.Zip(filepath.Join(dir, "a.zip")))
	defer a.Close()
	a.Folder("nested")
	require.NoError(t, a.Add(source))
	a.Home()

	dest := filepath.Join(dir, "out")
	require.NoError(t, a.ExtractTo(dest, nil, Blacklist))

	info, err := os.Stat(filepath.Join(dest, "nested"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	data, err := os.ReadFile(filepath.Join(dest, "nested", "in.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestMode(t *testing.T) {
	assert.Equal(t, "whitelist", Whitelist.String())
	assert.Equal(t, "blacklist", Blacklist.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestIsWithinDir(t *testing.T) {
	tests := []struct {
		base, target string
		want         bool
	}{
		{"/home/user/dest", "/home/user/dest/file.txt", true},
		{"/home/user/dest", "/home/user/dest", true},
		{"/home/user/dest", "/home/user/dest/file..txt", true},
		{"/home/user/dest", "/home/user/dest/..hidden", true},
		{"/home/user/dest", "/home/user/evil.txt", false},
		{"/home/user", "/home/username/evil.txt", false},
		{"/home/user/dest", "/tmp/evil.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isWithinDir(tt.base, tt.target), "%s in %s", tt.target, tt.base)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	for _, format := range []string{"zip", "phar"} {
		t.Run(format, func(t *testing.T) {
			bfs := memfs.New()
			writeFiles(t, bfs, map[string]string{
				"/project/src/main.txt": "package main",
				"/project/README.txt":   "read me",
			})
			a := New(WithStorage(bfs))

			require.NoError(t, a.Make("/out/out."+format, format))
			assert.Equal(t, format, a.ArchiveType())
			require.NoError(t, a.Add("/project/"))
			require.NoError(t, a.Close())

			require.NoError(t, a.Make("/out/out."+format, format))
			defer a.Close()

			content, err := a.FileContent("src/main.txt")
			require.NoError(t, err)
			assert.Equal(t, "package main", string(content))

			require.NoError(t, a.ExtractTo("/dest", []string{"src"}, Blacklist))
			assert.Equal(t, "read me", readFile(t, bfs, "/dest/README.txt"))
			_, err = bfs.Stat("/dest/src/main.txt")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFolderAddThenHomeList(t *testing.T) {
	bfs := memfs.New()
	writeFiles(t, bfs, map[string]string{"/in/readme.txt": "docs"})

	err := With("/out/docs.zip", "", func(a *Archiver) error {
		a.Folder("docs")
		if err := a.Add("/in/readme.txt"); err != nil {
			return err
		}
		a.Home()
		names, err := a.Entries()
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/readme.txt"}, names)
		return nil
	}, WithStorage(bfs))
	require.NoError(t, err)

	// With closed and flushed the archive
	a := New(WithStorage(bfs))
	require.NoError(t, a.Zip("/out/docs.zip"))
	defer a.Close()
	assert.True(t, a.Contains("docs/readme.txt"))
	assert.Equal(t, ports.StatusOK, a.Status())
}

func TestWithClosesOnError(t *testing.T) {
	bfs := memfs.New()
	boom := errors.New("boom")
	var opened *Archiver

	err := With("/out/a.phar", "phar", func(a *Archiver) error {
		opened = a
		return boom
	}, WithStorage(bfs))

	assert.ErrorIs(t, err, boom)
	assert.False(t, opened.IsOpen())
	_, statErr := bfs.Stat("/out/a.phar")
	assert.NoError(t, statErr)
}

func TestNewArchiveReadsAsEmpty(t *testing.T) {
	a := New(WithStorage(memfs.New()))
	require.NoError(t, a.Phar("/nowhere/new.phar"))
	defer a.Close()

	_, err := a.FileContent("anything.txt")
	assert.True(t, errors.Is(err, ports.ErrEntryNotFound))
	names, err := a.Entries()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteOnStorage(t *testing.T) {
	bfs := memfs.New()
	writeFiles(t, bfs, map[string]string{"/in/a.txt": "a"})
	a := New(WithStorage(bfs))
	require.NoError(t, a.Zip("/out/a.zip"))
	require.NoError(t, a.Add("/in/a.txt"))
	require.NoError(t, a.Close())

	require.NoError(t, a.Zip("/out/a.zip"))
	require.NoError(t, a.Delete())

	_, err := bfs.Stat("/out/a.zip")
	assert.True(t, os.IsNotExist(err))
}

func TestExtractLogsDecisions(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fs := mocks.NewMockFileSystem()
	repo := mocks.NewMockRepository()
	repo.Put("docs/a.txt", "a")
	repo.Put("docs/skip.txt", "s")
	repo.Put("other.txt", "o")
	a := New(WithFileSystem(fs), WithLogger(logger))
	require.NoError(t, a.MakeWith("/work/site.zip", repo))

	a.Folder("docs")
	require.NoError(t, a.ExtractTo("/dest", []string{"docs/skip"}, Blacklist))

	out := logs.String()
	assert.Contains(t, out, `msg="entry extracted" entry=docs/a.txt`)
	assert.Contains(t, out, `msg="entry skipped" entry=docs/skip.txt reason=blacklisted`)
	assert.Contains(t, out, `msg="entry skipped" entry=other.txt reason="outside folder"`)
}

func TestDroppedArchiverStillFlushes(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "in.txt")
	archive := filepath.Join(dir, "out", "dropped.zip")
	require.NoError(t, os.WriteFile(source, []byte("kept"), 0o644))

	func() {
		a := New()
		require.NoError(t, a.Zip(archive))
		require.NoError(t, a.Add(source))
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, err := os.Stat(archive)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "archive was not written after the archiver was collected")

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "in.txt", zr.File[0].Name)
}
