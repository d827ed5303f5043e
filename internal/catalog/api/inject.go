package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/httpx"
)

const (
	injectedCodeFile  = "injected_code.js"
	injectedStyleFile = "injected_style.css"
)

// getInjectedCode serves the browser client script with the API location,
// its stylesheet and the current catalog contents filled in.
func (s *Server) getInjectedCode(r *http.Request) (*httpx.Response, error) {
	if s.config.FrontendDir == "" {
		return nil, httpx.ErrNotFound("No frontend configured")
	}

	code, err := os.ReadFile(filepath.Join(s.config.FrontendDir, injectedCodeFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, httpx.ErrNotFound("%s not found", injectedCodeFile)
		}
		return nil, err
	}

	style, err := os.ReadFile(filepath.Join(s.config.FrontendDir, injectedStyleFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		httpx.LoggerFromContext(r.Context()).Debug("no stylesheet", zap.String("file", injectedStyleFile))
	}

	tables, err := s.readTables(r)
	if err != nil {
		return nil, err
	}

	var fields []string
	var ipns []string
	for _, t := range tables {
		name, _ := json.Marshal(t.Name)
		cols, _ := json.Marshal(t.Columns)
		fields = append(fields, string(name)+": "+string(cols))
		for _, ipn := range t.IPNs() {
			quoted, _ := json.Marshal(ipn)
			ipns = append(ipns, string(quoted))
		}
	}

	content := strings.NewReplacer(
		"/***API_URI***/", s.apiURI(r),
		"/***STYLE***/", strings.ReplaceAll(string(style), "\n", `\n`),
		"/***TABLE_FIELDS***/", strings.Join(fields, ", "),
		"/***ALL_IPNS***/", strings.Join(ipns, ", "),
	).Replace(string(code))

	return &httpx.Response{
		StatusCode:  http.StatusOK,
		ContentType: "application/javascript",
		Response:    content,
	}, nil
}

// apiURI is the absolute URL of the catalog routes as seen by the client.
func (s *Server) apiURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + s.config.Prefix + "/"
}
