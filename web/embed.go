package web

import "embed"

// TemplatesFS embeds the HTML templates rendered by the server.
//go:embed templates/*.html
var TemplatesFS embed.FS
