// Package site embeds the warning-type documentation published at
// https://vigil-sec.dev. The tree mirrors the site's URL layout, so the page
// at https://vigil-sec.dev/docs/warning_types/redirect/ is the file
// docs/warning_types/redirect/index.markdown.
package site

import "embed"

// FS holds the documentation tree.
//
//go:embed docs
var FS embed.FS
