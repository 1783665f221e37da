// Package web provides the embedded single-page UI.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed dist
var distFS embed.FS

// DistFS returns a filesystem rooted at the dist directory.
func DistFS() (http.FileSystem, error) {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}

// FileSystem returns dir when set, so the UI can be edited without a
// rebuild, and the embedded dist otherwise.
func FileSystem(dir string) (http.FileSystem, error) {
	if dir == "" {
		return DistFS()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
	}
	return http.Dir(dir), nil
}
