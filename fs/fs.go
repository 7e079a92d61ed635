// Package appfs embeds static application files, currently the database
// migrations run by goose.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
