// Package api serves the native HTTP API: it turns request parameters into
// backend queries and backend results or failures into JSON envelopes.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/auth"
	"github.com/ademuri/scrobble-server/internal/config"
	"github.com/ademuri/scrobble-server/internal/images"
	"github.com/ademuri/scrobble-server/internal/importer"
	"github.com/ademuri/scrobble-server/internal/logging"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/settings"
	"github.com/ademuri/scrobble-server/internal/store"
)

// Version is reported by serverinfo. Overridden at build time with -ldflags.
var Version = "1.0.0"

const maxFieldSize = 32 << 20

type Deps struct {
	Config   config.Config
	Store    *store.Store
	Settings *settings.Store
	Keys     *auth.KeyStore
	Images   *images.Store
	// Importer is nil when no last.fm credentials are configured.
	Importer *importer.Importer
	// Sentry enables the sentry-go gin middleware.
	Sentry bool
}

type Server struct {
	cfg      config.Config
	store    *store.Store
	settings *settings.Store
	keys     *auth.KeyStore
	images   *images.Store
	importer *importer.Importer
	sentry   bool
}

func New(d Deps) *Server {
	return &Server{
		cfg:      d.Config,
		store:    d.Store,
		settings: d.Settings,
		keys:     d.Keys,
		images:   d.Images,
		importer: d.Importer,
		sentry:   d.Sentry,
	}
}

// request is the per-request state handed to endpoint handlers.
type request struct {
	c        *gin.Context
	params   query.Params
	query    query.Query
	admin    bool
	client   string
	warnings []Warning
}

func (r *request) ctx() context.Context {
	return r.c.Request.Context()
}

func logger() *log.Entry {
	return logging.Component("api")
}

// Handler builds the gin engine serving every endpoint and the image
// directory.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(timing())
	if s.sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(gin.Recovery())

	if s.images != nil {
		r.Static(images.URLPrefix, s.images.Dir())
	}
	g := r.Group(BasePath)
	for _, ep := range Endpoints {
		g.Handle(ep.Method, "/"+ep.Path, s.wrap(ep))
	}
	return r
}

// timing logs how long each request took.
func timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		logger().WithField("route", route).WithField("status", c.Writer.Status()).
			Debugf("Executed %s in %s", route, time.Since(start).Round(time.Microsecond))
	}
}

func (s *Server) wrap(ep Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.fail(c, fmt.Errorf("panic in %s: %v", ep.Path, rec))
			}
		}()

		params, err := requestParams(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		r := &request{c: c, params: params}

		if !s.authorize(r, ep.Auth) {
			c.AbortWithStatusJSON(http.StatusForbidden, Envelope{
				"status": "failure",
				"error": ErrorBody{
					Type: "authentication_failed",
					Desc: "This endpoint requires " + ep.Auth.String() + " authentication.",
				},
			})
			return
		}

		if r.query, err = query.Translate(params, ep.Caps, s.store.Now()); err != nil {
			s.fail(c, err)
			return
		}

		res, err := ep.handle(s, r)
		if err != nil {
			s.fail(c, err)
			return
		}
		switch v := res.(type) {
		case nil:
			// The handler wrote the response itself.
		case Envelope:
			if len(r.warnings) > 0 {
				v["warnings"] = r.warnings
			}
			c.JSON(http.StatusOK, v)
		default:
			c.JSON(http.StatusOK, v)
		}
	}
}

// fail writes the error envelope for err. Uncategorized errors are logged
// and reported to sentry.
func (s *Server) fail(c *gin.Context, err error) {
	status, env := Dispatch(err)
	entry := logger().WithField("route", c.FullPath()).WithField("status", status)
	if apperr.Classify(err) == apperr.Unknown && status >= http.StatusInternalServerError {
		entry.WithError(err).Error("request failed")
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
	} else {
		entry.WithError(err).Debug("request rejected")
	}

	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(status, env)
}

func (s *Server) authorize(r *request, level Auth) bool {
	if _, pass, ok := r.c.Request.BasicAuth(); ok && auth.CheckPassword(s.cfg.AdminPassword, pass) {
		r.admin = true
	}
	switch level {
	case Public:
		return true
	case Admin:
		return r.admin
	}
	if r.admin {
		r.client = "browser"
		return true
	}
	if s.keys == nil {
		return false
	}
	client, ok := s.keys.Check(apiKey(r))
	if ok {
		r.client = client
	}
	return ok
}

func apiKey(r *request) string {
	if key, ok := r.params.Get("key"); ok {
		return key
	}
	if token, ok := strings.CutPrefix(r.c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// requestParams merges the query string with a form or JSON body, query
// string first.
func requestParams(c *gin.Context) (query.Params, error) {
	params, err := query.ParseQueryString(c.Request.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	if c.Request.Body == nil || c.Request.Method == http.MethodGet {
		return params, nil
	}

	var body query.Params
	switch c.ContentType() {
	case "multipart/form-data":
		mr, err := c.Request.MultipartReader()
		if err != nil {
			return nil, apperr.Malformed("body", "", err)
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, apperr.Malformed("body", "", err)
			}
			if part.FileName() != "" {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
			if err != nil {
				return nil, apperr.Malformed(part.FormName(), "", err)
			}
			if len(data) > maxFieldSize {
				return nil, apperr.Malformedf(part.FormName(), "", "field is larger than %d bytes", maxFieldSize)
			}
			body.Add(part.FormName(), string(data))
		}
	default:
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		trimmed := bytes.TrimSpace(data)
		switch {
		case len(trimmed) == 0:
		case c.ContentType() == "application/json" || trimmed[0] == '{':
			if body, err = query.ParseJSON(bytes.NewReader(trimmed)); err != nil {
				return nil, err
			}
		default:
			if body, err = query.ParseQueryString(string(trimmed)); err != nil {
				return nil, err
			}
		}
	}
	return append(params, body...), nil
}
