package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"

	"github.com/golang/glog"
)

//go:embed static
var static embed.FS

// Handler serves the page. A non-empty dir replaces the embedded files, for page development.
func Handler(dir string) (http.Handler, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		glog.Infof("serving page from %s", dir)
		return http.FileServer(http.Dir(dir)), nil
	}

	sub, err := fs.Sub(static, "static")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(sub)), nil
}
