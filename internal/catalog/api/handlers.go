package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/store"
	"github.com/kiplm/kiplm/internal/httpx"
)

func (s *Server) getHealth(r *http.Request) (*httpx.Response, error) {
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": "ok"},
	}, nil
}

// getParts lists the IPN of every record, tables in sorted order.
func (s *Server) getParts(r *http.Request) (*httpx.Response, error) {
	tables, err := s.readTables(r)
	if err != nil {
		return nil, err
	}

	ipns := []string{}
	for _, t := range tables {
		ipns = append(ipns, t.IPNs()...)
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: ipns}, nil
}

// getTables maps each table to its columns.
func (s *Server) getTables(r *http.Request) (*httpx.Response, error) {
	tables, err := s.readTables(r)
	if err != nil {
		return nil, err
	}

	fields := make(map[string][]string, len(tables))
	for _, t := range tables {
		fields[t.Name] = t.Columns
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: fields}, nil
}

func (s *Server) getPart(r *http.Request) (*httpx.Response, error) {
	ipn := chi.URLParam(r, "ipn")
	table := store.TableForIPN(ipn)
	if table == "" {
		return nil, httpx.ErrNotFound("Invalid or unknown IPN: %s", ipn)
	}

	rec, err := s.store.FindByIPN(table, ipn)
	if err != nil {
		if store.IsClientError(err) {
			return nil, httpx.ErrNotFound("Invalid or unknown IPN: %s", ipn)
		}
		return nil, err
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: rec}, nil
}

func (s *Server) getPartByMPN(r *http.Request) (*httpx.Response, error) {
	mpn := chi.URLParam(r, "mpn")

	rec, err := s.store.FindByFieldAll("MPN", mpn)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, httpx.ErrNotFound("No parts found with MPN: %s", mpn)
		}
		return nil, err
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: rec}, nil
}

// postPart creates a record. The category is taken from the IPN prefix.
func (s *Server) postPart(r *http.Request) (*httpx.Response, error) {
	ipn := chi.URLParam(r, "ipn")
	table := store.TableForIPN(ipn)
	if err := store.ValidateIPN(table, ipn); err != nil {
		return nil, httpx.ErrInvalidRequest("Invalid IPN: %s", ipn)
	}

	// Unknown table and taken IPN are reported before the body is looked at.
	// Create repeats both checks under the store lock.
	if _, err := s.store.FindByIPN(table, ipn); err == nil {
		return nil, httpx.ErrConflict("IPN already exists: %s", ipn)
	} else if !errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrTableNotFound) {
		return nil, storeError(err, table, ipn)
	}

	fields, err := readFields(r)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Create(table, ipn, fields)
	if err != nil {
		return nil, storeError(err, table, ipn)
	}

	httpx.LoggerFromContext(r.Context()).Info("part created", zap.String("ipn", ipn))
	if s.config.Events != nil {
		s.config.Events.PublishPartCreated(table, rec)
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: rec}, nil
}

// putPart updates some fields of a record. Unknown fields are ignored.
func (s *Server) putPart(r *http.Request) (*httpx.Response, error) {
	ipn := chi.URLParam(r, "ipn")
	table := store.TableForIPN(ipn)
	if table == "" {
		return nil, httpx.ErrNotFound("Invalid or unknown IPN: %s", ipn)
	}

	fields, err := readFields(r)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Update(table, ipn, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, httpx.ErrNotFound("Invalid or unknown IPN: %s", ipn)
		}
		return nil, err
	}

	httpx.LoggerFromContext(r.Context()).Info("part updated", zap.String("ipn", ipn))
	if s.config.Events != nil {
		s.config.Events.PublishPartUpdated(table, rec)
	}

	return &httpx.Response{StatusCode: http.StatusOK, Response: rec}, nil
}

// storeError maps a store error to its HTTP error.
func storeError(err error, table, ipn string) error {
	switch {
	case errors.Is(err, store.ErrInvalidIdentifier):
		return httpx.ErrInvalidRequest("Invalid IPN: %s", ipn)
	case errors.Is(err, store.ErrTableNotFound):
		return httpx.ErrNotFound("Database table not found: %s", table)
	case errors.Is(err, store.ErrDuplicateIdentifier):
		return httpx.ErrConflict("IPN already exists: %s", ipn)
	case errors.Is(err, store.ErrNotFound):
		return httpx.ErrNotFound("Invalid or unknown IPN: %s", ipn)
	default:
		return err
	}
}

// readTables reads every table, skipping the ones that fail to parse.
func (s *Server) readTables(r *http.Request) ([]*store.Table, error) {
	tables, failed, err := s.store.ReadAll()
	if err != nil {
		return nil, err
	}
	for name, ferr := range failed {
		httpx.LoggerFromContext(r.Context()).Warn("skipping unreadable table", zap.String("table", name), zap.Error(ferr))
	}
	return tables, nil
}
