package curriculum

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed content/*.yaml
var embedded embed.FS

const catalogFileName = "catalog.yaml"

// LoadEmbedded loads the curriculum shipped inside the binary.
func LoadEmbedded() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "content")
	if err != nil {
		return nil, fmt.Errorf("open embedded content: %w", err)
	}
	return Load(sub)
}

// LoadDir loads the curriculum from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load reads catalog.yaml and every track file it lists from fsys.
// Any invalid document aborts the load.
func Load(fsys fs.FS) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, catalogFileName)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	var index catalogFile
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("loading curriculum: parse %s: %w", catalogFileName, err)
	}
	if len(index.Tracks) == 0 {
		return nil, fmt.Errorf("loading curriculum: %s lists no tracks", catalogFileName)
	}

	tracks := make([]trackFile, 0, len(index.Tracks))
	for _, name := range index.Tracks {
		track, err := loadTrack(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("loading curriculum: %w", err)
		}
		tracks = append(tracks, track)
	}

	catalog, err := newCatalog(tracks)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "tracks", len(tracks), "lessons", catalog.Len())
	return catalog, nil
}

func loadTrack(fsys fs.FS, name string) (trackFile, error) {
	file := path.Clean(name) + ".yaml"
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return trackFile{}, fmt.Errorf("read track %s: %w", name, err)
	}

	if err := validateTrackDocument(data); err != nil {
		return trackFile{}, fmt.Errorf("track %s: %w", name, err)
	}

	var track trackFile
	if err := yaml.Unmarshal(data, &track); err != nil {
		return trackFile{}, fmt.Errorf("track %s: %w", name, err)
	}
	if track.ID != name {
		return trackFile{}, fmt.Errorf("track %s: file declares id %q", name, track.ID)
	}
	return track, nil
}
