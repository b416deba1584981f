// static.go — раздача статического фронтенда из публичной директории.
package server

import (
	"net/http"
	"os"
	"path"
)

// indexFile — файл, который отдаётся вместо директории.
const indexFile = "index.html"

// noListingFS — http.FileSystem без листинга директорий.
// Директория без index.html считается отсутствующей (404).
type noListingFS struct {
	fs http.FileSystem
}

// Open открывает файл; директорию — только если в ней есть index.html.
func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := n.fs.Open(path.Join(name, indexFile))
	if err != nil {
		f.Close()
		return nil, os.ErrNotExist
	}
	index.Close()

	return f, nil
}

// staticHandler отдаёт файлы из dir без листинга директорий.
func staticHandler(dir string) http.Handler {
	return http.FileServer(noListingFS{fs: http.Dir(dir)})
}
