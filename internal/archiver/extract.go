package archiver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mcdonaldj/archiver/internal/pathfilter"
	"github.com/mcdonaldj/archiver/internal/ports"
)

// Mode selects how ExtractTo interprets its filters.
type Mode int

const (
	// Whitelist extracts only entries matching a filter.
	Whitelist Mode = 1
	// Blacklist extracts every entry except those matching a filter.
	Blacklist Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Whitelist:
		return "whitelist"
	case Blacklist:
		return "blacklist"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ExtractTo writes entries of the current folder into dest, creating it
// when missing. The folder prefix is stripped from each destination path.
//
// In Blacklist mode filters are matched against the bare entry name. In
// Whitelist mode they are matched against the internal path plus the entry
// name, and an empty filter list extracts nothing. Any other mode behaves
// as Blacklist.
func (a *Archiver) ExtractTo(dest string, filters []string, mode Mode) error {
	if err := a.requireOpen("extract"); err != nil {
		return err
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return ports.Wrap(ports.ErrDirectoryCreate, err, "resolving %s", dest)
	}
	if !a.fs.Exists(root) {
		if err := a.fs.MkdirAll(root, a.extractDirMode); err != nil {
			return ports.Wrap(ports.ErrDirectoryCreate, err, "creating %s", root)
		}
	}

	a.logger.Debug("extracting", "archive", a.filePath, "dest", root, "folder", a.currentFolder, "mode", mode, "filters", filters)

	return a.repo.Each(func(name string) error {
		if skip := a.skipReason(name, filters, mode); skip != "" {
			a.logger.Debug("entry skipped", "entry", name, "reason", skip)
			return nil
		}
		return a.extractEntry(root, name)
	})
}

// skipReason returns why name is not extracted, or "" when it is.
func (a *Archiver) skipReason(name string, filters []string, mode Mode) string {
	if !a.inScope(name) {
		return "outside folder"
	}
	if mode == Whitelist {
		if !pathfilter.StartsWith(a.InternalPath()+name, filters) {
			return "not whitelisted"
		}
		return ""
	}
	if pathfilter.StartsWith(name, filters) {
		return "blacklisted"
	}
	return ""
}

func (a *Archiver) extractEntry(root, name string) error {
	rel := strings.TrimPrefix(name, a.InternalPath())
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !isWithinDir(root, target) {
		return ports.Wrap(ports.ErrUnsafePath, nil, "entry %q resolves to %s", name, target)
	}

	if strings.HasSuffix(name, "/") {
		if err := a.fs.MkdirAll(target, a.extractDirMode); err != nil {
			return ports.Wrap(ports.ErrDirectoryCreate, err, "creating %s", target)
		}
		return nil
	}

	dir := filepath.Dir(target)
	if !a.fs.Exists(dir) {
		if err := a.fs.MkdirAll(dir, a.extractDirMode); err != nil {
			return ports.Wrap(ports.ErrDirectoryCreate, err, "creating %s", dir)
		}
	}

	rc, err := a.repo.FileStream(name)
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := a.fs.Write(target, rc)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	a.logger.Debug("entry extracted", "entry", name, "target", target, "bytes", n)
	return nil
}

// isWithinDir reports whether target is base itself or lies below it.
// A plain prefix test would accept /home/username for /home/user.
func isWithinDir(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
