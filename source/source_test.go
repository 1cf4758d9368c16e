package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/rules"
)

const fixture = "testdata/orderable-drug-form.json"

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)
	return data
}

func find(t *testing.T, doc *Document, code string) concept.Raw {
	t.Helper()
	for _, c := range doc.Concepts {
		if c.Code == code {
			return c
		}
	}
	t.Fatalf("concept %q not found", code)
	return concept.Raw{}
}

func TestDecodeCodeSystem(t *testing.T) {
	doc, err := DecodeCodeSystem(readFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "http://terminology.hl7.org/CodeSystem/v3-orderableDrugForm", doc.URL)

	codes := make([]string, len(doc.Concepts))
	for i, c := range doc.Concepts {
		codes[i] = c.Code
	}
	assert.Equal(t, []string{
		"_AdministrableDrugForm", "APPFUL", "SPRY", "NASSPRY", "DROP", "_DispensableDrugForm", "TAB",
	}, codes, "nested concepts follow their parent")

	marker := find(t, doc, "_AdministrableDrugForm")
	assert.Contains(t, marker.Properties, concept.Pair{Name: "notSelectable", Value: "true"})
	assert.False(t, marker.HasDefinition)

	appful := find(t, doc, "APPFUL")
	assert.Equal(t, "Applicatorful", appful.Display)
	assert.True(t, appful.HasDefinition)
	assert.Equal(t, []concept.Pair{
		{Name: "subsumedBy", Value: "_AdministrableDrugForm"},
		{Name: "status", Value: "active"},
		{Name: "internalId", Value: "14529"},
	}, appful.Properties)

	tab := find(t, doc, "TAB")
	assert.Contains(t, tab.Properties, concept.Pair{Name: "comment", Value: "nested"})
	assert.Contains(t, tab.Properties, concept.Pair{Name: "subsumedBy", Value: "_DispensableDrugForm"})
}

func TestDecodeCodeSystem_TopLevelOnly(t *testing.T) {
	doc, err := DecodeCodeSystem(readFixture(t), TopLevelOnly())
	require.NoError(t, err)

	codes := make([]string, len(doc.Concepts))
	for i, c := range doc.Concepts {
		codes[i] = c.Code
	}
	assert.Equal(t, []string{
		"_AdministrableDrugForm", "APPFUL", "SPRY", "NASSPRY", "DROP", "_DispensableDrugForm",
	}, codes)
	for _, c := range doc.Concepts {
		assert.NotContains(t, c.Properties, concept.Pair{Name: concept.PropSubsumedBy, Value: "_DispensableDrugForm"}, c.Code)
	}
}

func TestDecodeCodeSystem_Errors(t *testing.T) {
	_, err := DecodeCodeSystem([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeCodeSystem([]byte(`{"resourceType":"ValueSet"}`))
	assert.True(t, errors.Is(err, ErrNotCodeSystem))
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"text"`, "text"},
		{`true`, "true"},
		{`42`, "42"},
		{`1.5`, "1.5"},
		{`{"system":"http://x","code":"abc"}`, "abc"},
	}
	for _, tt := range tests {
		got, err := renderValue([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}

	_, err := renderValue([]byte(`{"system":"http://x"}`))
	assert.Error(t, err)
}

func TestPreconditions(t *testing.T) {
	data := readFixture(t)
	p := NewPreconditions()

	assert.NoError(t, p.Check("", data))
	assert.NoError(t, p.Check("CodeSystem.url = 'http://terminology.hl7.org/CodeSystem/v3-orderableDrugForm'", data))

	err := p.Check("CodeSystem.url = 'http://example.org/other'", data)
	assert.True(t, errors.Is(err, ErrPreconditionFailed))

	err = p.Check("CodeSystem.missingElement", data)
	assert.True(t, errors.Is(err, ErrPreconditionFailed), "empty collection is false")

	assert.NoError(t, p.Check("CodeSystem.concept", data), "non-empty collection is true")
	assert.Equal(t, 4, p.CacheSize())

	assert.NoError(t, CheckPrecondition("CodeSystem.status = 'active'", data))
}

func TestFetcher_HTTP(t *testing.T) {
	data := readFixture(t)
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		if r.URL.Path != "/cs.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()))

	got, err := f.Fetch(context.Background(), srv.URL+"/cs.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, cl.UserAgent(), gotUA)
	assert.Contains(t, gotAccept, "application/fhir+json")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.json")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetcher_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()), WithMaxBytes(5))
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestFetcher_Files(t *testing.T) {
	abs, err := filepath.Abs(fixture)
	require.NoError(t, err)

	f := NewFetcher()
	for _, location := range []string{fixture, abs, "file://" + abs} {
		data, err := f.Fetch(context.Background(), location)
		require.NoError(t, err, location)
		assert.NotEmpty(t, data)
	}

	based := NewFetcher(WithBaseDir("testdata"))
	_, err = based.Fetch(context.Background(), "orderable-drug-form.json")
	assert.NoError(t, err)

	_, err = f.Fetch(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoLocation))

	_, err = f.Fetch(context.Background(), "ftp://example.org/x")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "testdata/does-not-exist.json")
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://terminology.hl7.org/x.json"))
	assert.False(t, IsRemote("file:///tmp/x.json"))
	assert.False(t, IsRemote("codelists/x.json"))
}

func TestFetcher_TimeoutCopiesClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	f := NewFetcher(WithHTTPClient(shared), WithTimeout(time.Second))
	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, f.httpClient.Timeout)
	assert.NotSame(t, shared, f.httpClient)

	g := NewFetcher(WithTimeout(time.Second), WithHTTPClient(shared))
	assert.Same(t, shared, g.httpClient)
}

func TestLoader(t *testing.T) {
	l := NewLoader(nil)

	list := &rules.Codelist{
		Name: "dosageForm",
		Source: rules.Source{
			URL:          fixture,
			Format:       rules.FormatFHIRCodeSystem,
			Precondition: "CodeSystem.url = 'http://terminology.hl7.org/CodeSystem/v3-orderableDrugForm'",
		},
		Policy: rules.Policy{Classify: true},
	}
	doc, err := l.Load(context.Background(), list)
	require.NoError(t, err)
	assert.Len(t, doc.Concepts, 7)

	list.Policy.Classify = false
	doc, err = l.Load(context.Background(), list)
	require.NoError(t, err)
	assert.Len(t, doc.Concepts, 6, "nested concepts are read only for a hierarchy")
	list.Policy.Classify = true

	list.Source.Precondition = "CodeSystem.url = 'http://example.org'"
	_, err = l.Load(context.Background(), list)
	assert.True(t, errors.Is(err, ErrPreconditionFailed))
	assert.Contains(t, err.Error(), "dosageForm")

	list.Source.URL = ""
	_, err = l.Load(context.Background(), list)
	assert.True(t, errors.Is(err, ErrNoLocation))
}
