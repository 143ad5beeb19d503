package assist

import (
	"errors"
	"io/fs"
	"path"
	"regexp"

	"go.uber.org/zap"

	"github.com/vigil-sec/vigil/site"
)

// docLinkPattern captures the page path of a documentation link.
var docLinkPattern = regexp.MustCompile(`https://vigil-sec\.dev/(.+)/`)

const docFileName = "index.markdown"

const backgroundPreamble = "Here is background information about this type of vulnerability: "

// DocResolver finds the background document for a warning's link.
type DocResolver struct {
	fsys   fs.FS
	logger *zap.Logger
}

// NewDocResolver reads documents from fsys. A nil fsys uses the embedded
// documentation site; a nil logger discards notices.
func NewDocResolver(fsys fs.FS, logger *zap.Logger) *DocResolver {
	if fsys == nil {
		fsys = site.FS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocResolver{fsys: fsys, logger: logger}
}

// Background returns the preamble followed by the document for link, or ""
// when link is not a documentation link or has no document.
func (r *DocResolver) Background(link string) string {
	m := docLinkPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}

	name := path.Join(m[1], docFileName)
	if !fs.ValidPath(name) {
		return ""
	}
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("no background document", zap.String("path", name))
		} else {
			r.logger.Warn("reading background document", zap.String("path", name), zap.Error(err))
		}
		return ""
	}
	return backgroundPreamble + string(data)
}
