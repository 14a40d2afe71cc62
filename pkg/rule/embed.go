package rule

import "embed"

// builtinFS holds the builtin pattern files and the sets built from them.
//
//go:embed patterns/*.yml sets/*.yml
var builtinFS embed.FS
