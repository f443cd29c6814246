package templates

import "embed"

// Emails holds the transactional email bodies
//
//go:embed *.html
var Emails embed.FS
