package qbit

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// webUI is a minimal in-memory qBittorrent WebUI used to exercise the client
// end to end.
type webUI struct {
	user, pass string

	mu    sync.Mutex
	added []addedTorrent
}

type addedTorrent struct {
	data    []byte
	options map[string]string
}

func (w *webUI) torrents() []addedTorrent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]addedTorrent(nil), w.added...)
}

func (w *webUI) handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/api/v2")

	rg.POST("/auth/login", w.authLogin())
	rg.GET("/app/version", w.guard(func(c *gin.Context) { c.String(http.StatusOK, "v4.6.0") }))
	rg.GET("/app/webapiVersion", w.guard(func(c *gin.Context) { c.String(http.StatusOK, "2.9.3") }))
	rg.POST("/torrents/add", w.guard(w.torrentsAdd()))

	return r
}

func (w *webUI) authLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.PostForm("username") != w.user || c.PostForm("password") != w.pass {
			c.String(http.StatusOK, "Fails.")
			return
		}
		http.SetCookie(c.Writer, &http.Cookie{Name: "SID", Value: "ok", Path: "/", HttpOnly: true})
		c.String(http.StatusOK, "Ok.")
	}
}

func (w *webUI) guard(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid, err := c.Cookie("SID"); err != nil || sid != "ok" {
			c.String(http.StatusForbidden, "Forbidden")
			return
		}
		h(c)
	}
}

func (w *webUI) torrentsAdd() gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		files := form.File["torrents"]
		if len(files) == 0 {
			c.String(http.StatusBadRequest, "No urls or torrents provided")
			return
		}

		opts := map[string]string{}
		for k, v := range form.Value {
			if len(v) > 0 {
				opts[k] = v[0]
			}
		}

		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				c.String(http.StatusBadRequest, err.Error())
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.String(http.StatusBadRequest, err.Error())
				return
			}

			w.mu.Lock()
			w.added = append(w.added, addedTorrent{data: data, options: opts})
			w.mu.Unlock()
		}

		c.String(http.StatusOK, "Ok.")
	}
}
