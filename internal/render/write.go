package render

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/atomicio"
	"github.com/abelbrown/likesfeed/internal/logging"
)

// Paths are the artifact destinations.
type Paths struct {
	Feed      string
	Index     string
	LastBuild string
}

// WriteArtifacts writes the feed, the index page and the build timestamp,
// each atomically, then makes sure a .nojekyll marker sits next to the feed
// so GitHub Pages serves the directory as is.
func WriteArtifacts(paths Paths, out Output) error {
	files := []struct {
		path string
		data []byte
	}{
		{paths.Feed, out.Feed},
		{paths.Index, out.Index},
		{paths.LastBuild, []byte(out.BuildTimestamp + "\n")},
	}
	for _, f := range files {
		if err := atomicio.WriteFile(f.path, f.data, 0644); err != nil {
			return apperr.New(apperr.RenderFailure, "render.write", err)
		}
		logging.Debug("artifact written", "path", f.path, "bytes", len(f.data))
	}

	marker := filepath.Join(filepath.Dir(paths.Feed), ".nojekyll")
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		if err := atomicio.WriteFile(marker, nil, 0644); err != nil {
			return apperr.New(apperr.RenderFailure, "render.write", err)
		}
	}
	return nil
}
