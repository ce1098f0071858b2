// Package client embeds the browser side of the wizard: the page shell and
// the script that renders server snapshots and applies merge patches.
package client

import (
	"embed"
	"io/fs"
)

//go:embed src/index.html src/*.js src/*.css
var assets embed.FS

// Assets returns the embedded filesystem rooted at src.
func Assets() fs.FS {
	fsys, err := fs.Sub(assets, "src")
	if err != nil {
		panic(err)
	}
	return fsys
}

// GetFile returns the contents of an embedded file.
func GetFile(name string) ([]byte, error) {
	return assets.ReadFile("src/" + name)
}
