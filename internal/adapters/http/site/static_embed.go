package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/**
var staticFS embed.FS

// FS returns an http.FileSystem for the embedded docs site.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// fs.Sub fails only if "static" is not a valid path; fall back
		// to the root of the embed.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}
