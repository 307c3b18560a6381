package supervisor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/amilaanjanab/voidstream/internal/config"
)

const (
	QualityBest  = "best"
	QualityWorst = "worst"
)

// Request describes one download to start.
type Request struct {
	URL          string
	Quality      string
	DownloadPath string
}

// outputTemplate is the downloader's -o value. The timestamp uses '.' rather
// than ':' so the name is valid on Windows filesystems.
func outputTemplate(dir string, now time.Time) string {
	stamp := fmt.Sprintf("[%02d.%02d]", now.Hour(), now.Minute())
	return filepath.Join(dir, "%(title)s "+stamp+".%(ext)s")
}

// BuildArgs returns the full argv for req, starting with the configured
// downloader command. Only "worst" adds a format selector; anything else
// leaves the downloader on its default best-quality behaviour.
func BuildArgs(dl config.DownloaderConfig, req Request, now time.Time) []string {
	argv := make([]string, 0, len(dl.Command)+len(dl.ExtraArgs)+8)
	argv = append(argv, dl.Command...)
	argv = append(argv,
		req.URL,
		"-o", outputTemplate(req.DownloadPath, now),
		"--no-part",
		"--restrict-filenames",
	)
	argv = append(argv, dl.ExtraArgs...)
	if req.Quality == QualityWorst {
		argv = append(argv, "-f", "worst")
	}
	return argv
}
