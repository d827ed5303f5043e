package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeCSV writes raw CSV content for a table into dir.
func writeCSV(t *testing.T, dir, table, content string) string {
	t.Helper()

	path := filepath.Join(dir, table+Ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// setupStore creates a store with an ABC table holding one resistor.
func setupStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	writeCSV(t, dir, "ABC", "IPN,MPN,Value,Symbol,Footprint\nABC-0001-AAAA,XYZ123,10k,Device:R,R_0603\n")
	return New(dir), dir
}

func TestListTables(t *testing.T) {
	s, dir := setupStore(t)
	writeCSV(t, dir, "CAP", "IPN,MPN\n")
	writeCSV(t, dir, ".hidden", "IPN\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	tables, err := s.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "CAP"}, tables)
}

func TestListTables_MissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))

	_, err := s.ListTables()
	assert.Error(t, err)
}

func TestReadAll_CaseCollision(t *testing.T) {
	s, dir := setupStore(t)
	writeCSV(t, dir, "abc", "IPN,MPN\nabc-0001-AAAA,X\n")
	writeCSV(t, dir, "CAP", "IPN,MPN\n")

	tables, failed, err := s.ReadAll()
	require.NoError(t, err)

	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"ABC", "CAP"}, names)
	require.Contains(t, failed, "abc")
	assert.ErrorIs(t, failed["abc"], ErrMalformedTable)
	assert.Contains(t, failed["abc"].Error(), "ABC")
}

func TestRead(t *testing.T) {
	s, _ := setupStore(t)

	tbl, err := s.Read("ABC")
	require.NoError(t, err)
	assert.Equal(t, "ABC", tbl.Name)
	assert.Equal(t, []string{"IPN", "MPN", "Value", "Symbol", "Footprint"}, tbl.Columns)
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, []string{"ABC-0001-AAAA"}, tbl.IPNs())
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "empty file", content: "", wantErr: ErrMalformedTable},
		{name: "wrong key column", content: "MPN,IPN\nX,ABC-0001-AAAA\n", wantErr: ErrMalformedTable},
		{name: "ragged row", content: "IPN,MPN\nABC-0001-AAAA\n", wantErr: ErrMalformedTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeCSV(t, dir, "ABC", tt.content)

			_, err := New(dir).Read("ABC")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing table", func(t *testing.T) {
		_, err := New(t.TempDir()).Read("ABC")
		assert.ErrorIs(t, err, ErrTableNotFound)
	})
}

func TestRead_ByteOrderMark(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "ABC", "\ufeffIPN,MPN\nABC-0001-AAAA,X\n")

	tbl, err := New(dir).Read("ABC")
	require.NoError(t, err)
	assert.Equal(t, "IPN", tbl.Columns[0])
}

func TestFindByIPN(t *testing.T) {
	s, _ := setupStore(t)

	rec, err := s.FindByIPN("ABC", "ABC-0001-AAAA")
	require.NoError(t, err)
	mpn, ok := rec.Get("MPN")
	assert.True(t, ok)
	assert.Equal(t, "XYZ123", mpn)

	_, err = s.FindByIPN("ABC", "ABC-0002-AAAA")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByField(t *testing.T) {
	s, dir := setupStore(t)
	writeCSV(t, dir, "CAP", "IPN,MPN\nCAP-0001-AAAA,C1\nCAP-0002-AAAA,C2\nCAP-0003-AAAA,C2\n")
	writeCSV(t, dir, "MEC", "IPN,Name\nMEC-0001-AAAA,Screw\n")

	rec, err := s.FindByField("CAP", "MPN", "C2")
	require.NoError(t, err)
	assert.Equal(t, "CAP-0002-AAAA", rec.IPN(), "first match wins")

	_, err = s.FindByField("CAP", "Missing", "C2")
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err = s.FindByFieldAll("MPN", "XYZ123")
	require.NoError(t, err)
	assert.Equal(t, "ABC-0001-AAAA", rec.IPN())

	_, err = s.FindByFieldAll("MPN", "NONE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_RoundTrip(t *testing.T) {
	s, _ := setupStore(t)

	rec, err := s.Create("ABC", "ABC-0002-b7Zz", map[string]string{
		"MPN":   "RC0603",
		"Value": "4k7",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-0002-b7Zz", "RC0603", "4k7", "", ""}, rec.Values)

	tbl, err := s.Read("ABC")
	require.NoError(t, err)

	var matches int
	for i := 0; i < tbl.Len(); i++ {
		r := tbl.Record(i)
		if r.IPN() != "ABC-0002-b7Zz" {
			continue
		}
		matches++
		assert.Equal(t, map[string]string{
			"IPN":       "ABC-0002-b7Zz",
			"MPN":       "RC0603",
			"Value":     "4k7",
			"Symbol":    "",
			"Footprint": "",
		}, r.Map())
	}
	assert.Equal(t, 1, matches)
}

func TestCreate_IgnoresIPNAndUnknownFields(t *testing.T) {
	s, _ := setupStore(t)

	rec, err := s.Create("ABC", "ABC-0002-AAAA", map[string]string{
		"IPN":     "ABC-9999-ZZZZ",
		"Unknown": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC-0002-AAAA", rec.IPN())
	assert.Len(t, rec.Values, 5)
}

func TestCreate_InvalidIdentifier(t *testing.T) {
	s, _ := setupStore(t)

	tests := []struct {
		name string
		ipn  string
	}{
		{name: "wrong pattern", ipn: "ABC12345"},
		{name: "prefix mismatch", ipn: "XYZ-0001-AAAA"},
		{name: "lowercase prefix", ipn: "abc-0001-AAAA"},
		{name: "short suffix", ipn: "ABC-0001-AAA"},
		{name: "empty", ipn: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create("ABC", tt.ipn, nil)
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}

	tbl, err := s.Read("ABC")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len(), "rejected creates must not touch the file")
}

func TestCreate_TableNotFound(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Create("RES", "RES-0001-AAAA", nil)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCreate_Duplicate(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Create("ABC", "ABC-0002-AAAA", nil)
	require.NoError(t, err)

	_, err = s.Create("ABC", "ABC-0002-AAAA", nil)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)

	tbl, err := s.Read("ABC")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len(), "row count grows by exactly one")
}

func TestCreate_ConcurrentSameIPN(t *testing.T) {
	s, _ := setupStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create("ABC", "ABC-0100-AAAA", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateIdentifier):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dup)
}

func TestCreate_LeavesNoTempFiles(t *testing.T) {
	s, dir := setupStore(t)

	_, err := s.Create("ABC", "ABC-0002-AAAA", map[string]string{"MPN": "a,b \"quoted\""})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}

	rec, err := s.FindByIPN("ABC", "ABC-0002-AAAA")
	require.NoError(t, err)
	mpn, _ := rec.Get("MPN")
	assert.Equal(t, "a,b \"quoted\"", mpn)
}

func TestUpdate(t *testing.T) {
	s, _ := setupStore(t)

	rec, err := s.Update("ABC", "ABC-0001-AAAA", map[string]string{"Value": "22k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-0001-AAAA", "XYZ123", "22k", "Device:R", "R_0603"}, rec.Values)

	stored, err := s.FindByIPN("ABC", "ABC-0001-AAAA")
	require.NoError(t, err)
	assert.Equal(t, rec.Values, stored.Values)
}

func TestUpdate_UnknownFieldIsIgnored(t *testing.T) {
	s, _ := setupStore(t)

	before, err := s.FindByIPN("ABC", "ABC-0001-AAAA")
	require.NoError(t, err)

	rec, err := s.Update("ABC", "ABC-0001-AAAA", map[string]string{"UnknownField": "x"})
	require.NoError(t, err)
	assert.Equal(t, before.Values, rec.Values)
}

func TestUpdate_IPNIsImmutable(t *testing.T) {
	s, _ := setupStore(t)

	rec, err := s.Update("ABC", "ABC-0001-AAAA", map[string]string{"IPN": "ABC-0009-AAAA"})
	require.NoError(t, err)
	assert.Equal(t, "ABC-0001-AAAA", rec.IPN())
}

func TestUpdate_NotFound(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Update("ABC", "ABC-0404-AAAA", map[string]string{"Value": "1"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update("RES", "RES-0001-AAAA", map[string]string{"Value": "1"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRecord_MarshalJSONKeepsColumnOrder(t *testing.T) {
	rec := &Record{
		Columns: []string{"IPN", "Zeta", "Alpha"},
		Values:  []string{"ABC-0001-AAAA", "z", "a"},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"IPN":"ABC-0001-AAAA","Zeta":"z","Alpha":"a"}`, string(data))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrNotFound))
	assert.True(t, IsClientError(ValidateIPN("ABC", "nope")))
	assert.False(t, IsClientError(ErrMalformedTable))
	assert.False(t, IsClientError(nil))
}
