package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind is the media classification assigned to a scanned file.
type Kind string

const (
	KindImage       Kind = "image"
	KindVideo       Kind = "video"
	KindUnsupported Kind = "unsupported"
)

// Extensions holds the recognized media extensions, lowercased with leading dot.
type Extensions struct {
	image map[string]struct{}
	video map[string]struct{}
}

// NewExtensions builds an extension set from configured lists.
func NewExtensions(imageExts, videoExts []string) Extensions {
	return Extensions{
		image: toSet(imageExts),
		video: toSet(videoExts),
	}
}

func toSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		cleaned := strings.ToLower(strings.TrimSpace(ext))
		if cleaned == "" {
			continue
		}
		if !strings.HasPrefix(cleaned, ".") {
			cleaned = "." + cleaned
		}
		set[cleaned] = struct{}{}
	}
	return set
}

// KindOf classifies a filename by extension.
func (e Extensions) KindOf(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := e.image[ext]; ok {
		return KindImage
	}
	if _, ok := e.video[ext]; ok {
		return KindVideo
	}
	return KindUnsupported
}

// Candidate is one scanned file with its stable identity and kind.
type Candidate struct {
	ID      string
	RelPath string
	AbsPath string
	Kind    Kind
}

// Warning records a directory entry that could not be classified.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	return w.Path + ": " + w.Message
}

// Scan walks the input root and classifies every regular file. The result is
// sorted by normalized relative path so identical filesystem contents always
// produce the same ordered work list. Unreadable entries become warnings, not
// errors; the scan continues with whatever classified cleanly.
func Scan(root string, recursive bool, exts Extensions) ([]Candidate, []Warning, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve input root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return nil, nil, fmt.Errorf("stat input root: %w", err)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("input root %s is not a directory", absRoot)
	}

	var (
		candidates []Candidate
		warnings   []Warning
	)

	walkErr := filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Message: err.Error()})
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if !recursive && path != absRoot {
				return fs.SkipDir
			}
			return nil
		}

		// Stat follows symlinks; a dangling link is a warning, not an item.
		info, err := os.Stat(path)
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Message: err.Error()})
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Message: err.Error()})
			return nil
		}

		candidates = append(candidates, Candidate{
			ID:      ItemID(rel),
			RelPath: normalizeRel(rel),
			AbsPath: path,
			Kind:    exts.KindOf(entry.Name()),
		})
		return nil
	})
	if walkErr != nil {
		return nil, warnings, fmt.Errorf("walk input root: %w", walkErr)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RelPath < candidates[j].RelPath
	})
	return candidates, warnings, nil
}

// ItemID derives a stable identity from a relative path. The path is
// slash-normalized and NFC-normalized first, so checkouts of the same tree on
// different filesystems hash identically.
func ItemID(relPath string) string {
	sum := sha256.Sum256([]byte(normalizeRel(relPath)))
	return hex.EncodeToString(sum[:8])
}

func normalizeRel(relPath string) string {
	return norm.NFC.String(filepath.ToSlash(relPath))
}
