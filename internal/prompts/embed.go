package prompts

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.txt.tmpl
var embedded embed.FS

// FS returns the embedded template filesystem.
func FS() fs.FS { return embedded }

// PathFor maps a template name onto its file path inside the FS.
func PathFor(name string) string { return "templates/" + name + ".txt.tmpl" }
