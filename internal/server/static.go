package server

import (
	_ "embed"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

//go:embed assets/cancel.html
var defaultCancelPage []byte

func (s *Server) servePage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !fileExists(s.cfg.StaticDir, name) {
			AbortWithError(c, ErrNotFound)
			return
		}
		c.File(filepath.Join(s.cfg.StaticDir, name))
	}
}

func (s *Server) renderCancelPage(c *gin.Context) {
	if fileExists(s.cfg.StaticDir, "cancel.html") {
		c.File(filepath.Join(s.cfg.StaticDir, "cancel.html"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", defaultCancelPage)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && fileExists(s.cfg.StaticDir, c.Request.URL.Path) {
			c.File(filepath.Join(s.cfg.StaticDir, filepath.Clean(c.Request.URL.Path)))
			return
		}
		AbortWithError(c, ErrNotFound)
	})
}

func fileExists(publicDir, reqPath string) bool {
	if publicDir == "" {
		return false
	}
	clean := filepath.Clean("/" + reqPath)

	// prevent path traversal
	if clean == "/" {
		return false
	}

	fullPath := filepath.Join(publicDir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
