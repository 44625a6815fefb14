package replay

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultExtension is appended to loose replay names that have none.
const DefaultExtension = ".lmp"

// ErrNotFound is returned when a replay name resolves to neither a loose file
// nor an archive resource.
var ErrNotFound = errors.New("replay: not found")

// Source records where a resolved replay came from.
type Source struct {
	// Path is the loose file path, or the archive path for archive resources.
	Path string
	// Entry is the resource name inside the archive. Empty for loose files.
	Entry string
}

func (s Source) String() string {
	if s.Entry == "" {
		return s.Path
	}
	return s.Path + ":" + s.Entry
}

// Locator resolves replay names against the loose replay tree and the loaded
// asset archives.
type Locator struct {
	Home      string
	Extension string
	Archives  []string
}

// NewLocator builds a locator rooted at home. ext is appended to names that
// carry no extension of their own.
func NewLocator(home, ext string, archives []string) *Locator {
	if ext == "" {
		ext = DefaultExtension
	}
	return &Locator{Home: home, Extension: ext, Archives: append([]string(nil), archives...)}
}

// Resolve loads the replay called name. Names with a path separator or an
// extension are loose files; bare names are tried as loose files with the
// extension appended, then as archive resources.
func (l *Locator) Resolve(name string) ([]byte, Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Source{}, fmt.Errorf("%w: empty name", ErrNotFound)
	}
	loose := name
	if filepath.Ext(loose) == "" {
		loose += l.Extension
	}
	for _, candidate := range l.loosePaths(loose) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, Source{Path: candidate}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, Source{}, err
		}
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, Source{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, archive := range l.Archives {
		data, entry, err := readArchiveEntry(archive, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, Source{}, err
		}
		return data, Source{Path: archive, Entry: entry}, nil
	}
	return nil, Source{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (l *Locator) loosePaths(name string) []string {
	if filepath.IsAbs(name) || l.Home == "" {
		return []string{name}
	}
	//1.- Prefer the replay tree, then fall back to the home directory itself.
	return []string{
		filepath.Join(l.Home, "replay", name),
		filepath.Join(l.Home, name),
	}
}

// readArchiveEntry finds a resource whose base name, with or without its
// extension, equals name. Matching is case-insensitive like lump lookup.
func readArchiveEntry(archive, name string) ([]byte, string, error) {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		base := path.Base(file.Name)
		stem := strings.TrimSuffix(base, path.Ext(base))
		if !strings.EqualFold(base, name) && !strings.EqualFold(stem, name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, "", err
		}
		return data, file.Name, nil
	}
	return nil, "", ErrNotFound
}
