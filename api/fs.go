// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
)

//go:embed web
var webFiles embed.FS

// FileHandler serves the viewer page and its assets.
type FileHandler struct {
	fs    http.Handler
	files fs.FS
}

// NewFileHandler serves files from fsys. A nil fsys selects the embedded
// viewer.
func NewFileHandler(fsys fs.FS) *FileHandler {
	if fsys == nil {
		sub, err := fs.Sub(webFiles, "web")
		if err != nil {
			panic(err)
		}
		fsys = sub
	}
	return &FileHandler{
		fs:    http.FileServer(http.FS(fsys)),
		files: fsys,
	}
}

func (f *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	debugf("file request from %v: %v", r.RemoteAddr, r.URL.Path)
	f.fs.ServeHTTP(w, r)
}

// Exists reports whether name is served by f.
func (f *FileHandler) Exists(name string) bool {
	_, err := fs.Stat(f.files, path.Clean(name))
	return err == nil
}
