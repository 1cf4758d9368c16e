package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/engine"
	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/source"
	"github.com/gofhir/codelists/stage"
)

type memorySink struct {
	mu      sync.Mutex
	written map[string]*cl.Result
	err     error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.written == nil {
		m.written = make(map[string]*cl.Result)
	}
	m.written[list.Name] = result
	return nil
}

func staticLoader(docs map[string][]concept.Raw) SourceLoader {
	return SourceLoaderFunc(func(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
		raw, ok := docs[list.Name]
		if !ok {
			return nil, ErrNotFound
		}
		return &source.Document{URL: "urn:" + list.Name, Concepts: raw}, nil
	})
}

func TestUpdater_UpdateAll(t *testing.T) {
	docs := map[string][]concept.Raw{
		rules.AdministrationRoute: {
			concept.NewRaw("RMT", "routes", "notSelectable", "true"),
			concept.NewRaw("20053000", "oral use", "status", "active", "subsumedBy", "RMT"),
		},
		rules.Container: {concept.NewRaw("box", "Box")},
		rules.DosageForm: {
			concept.NewRaw("_F", "forms", "notSelectable", "true"),
			concept.NewRaw("TAB", "Tablet", "status", "active", "subsumedBy", "_F"),
		},
	}
	out := &memorySink{}
	var logs bytes.Buffer

	u := NewUpdater(rules.Default(), staticLoader(docs),
		WithSink(out),
		WithLogger(zerolog.New(zerolog.SyncWriter(&logs))),
		WithWorkers(2),
	)

	report, err := u.Update(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.True(t, report.OK())

	names := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		names = append(names, o.Name)
		assert.True(t, o.Written, o.Name)
	}
	assert.Equal(t, rules.Default().Names(), names)

	require.Contains(t, out.written, rules.DosageForm)
	assert.Equal(t, []string{"TAB"}, out.written[rules.DosageForm].Codes())
	assert.Equal(t, [][]string{{"20053000", "Oral use", ""}}, out.written[rules.AdministrationRoute].Rows())

	assert.Contains(t, logs.String(), "codelist normalized")
	assert.Contains(t, logs.String(), "update finished")
}

// locatedLoader fails like source.Loader for codelists without a URL.
func locatedLoader(docs map[string][]concept.Raw) SourceLoader {
	inner := staticLoader(docs)
	return SourceLoaderFunc(func(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
		if list.Source.URL == "" {
			return nil, fmt.Errorf("%s: %w", list.Name, source.ErrNoLocation)
		}
		return inner.Load(ctx, list)
	})
}

func TestUpdater_UpdateAll_SkipsUnsourced(t *testing.T) {
	docs := map[string][]concept.Raw{
		rules.Container: {concept.NewRaw("box", "Box")},
		rules.DosageForm: {
			concept.NewRaw("_F", "forms", "notSelectable", "true"),
			concept.NewRaw("TAB", "Tablet", "status", "active", "subsumedBy", "_F"),
		},
	}
	out := &memorySink{}
	var logs bytes.Buffer

	u := NewUpdater(rules.Default(), locatedLoader(docs),
		WithSink(out),
		WithLogger(zerolog.New(zerolog.SyncWriter(&logs))),
	)
	report, err := u.Update(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Empty(t, report.Failed())
	skipped := report.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, rules.AdministrationRoute, skipped[0].Name)
	assert.NoError(t, skipped[0].Err)
	assert.False(t, skipped[0].Written)
	assert.Nil(t, skipped[0].Result)

	assert.Len(t, out.written, 2)
	assert.NotContains(t, out.written, rules.AdministrationRoute)
	assert.Contains(t, logs.String(), "no source configured, skipped")
}

func TestUpdater_NamedUnsourcedFails(t *testing.T) {
	u := NewUpdater(rules.Default(), locatedLoader(nil))
	report, err := u.Update(context.Background(), rules.AdministrationRoute)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Skipped)
	assert.ErrorIs(t, report.Outcomes[0].Err, source.ErrNoLocation)
	assert.False(t, report.OK())
}

func TestUpdater_DryRun(t *testing.T) {
	docs := map[string][]concept.Raw{rules.Container: {concept.NewRaw("box", "Box")}}
	out := &memorySink{}

	u := NewUpdater(rules.Default(), staticLoader(docs), WithSink(out), WithDryRun(true))
	report, err := u.Update(context.Background(), rules.Container)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.False(t, report.Outcomes[0].Written)
	require.NotNil(t, report.Outcomes[0].Result)
	assert.Equal(t, []string{"box"}, report.Outcomes[0].Result.Codes())
	assert.Empty(t, out.written)
}

func TestUpdater_UpdateNamed(t *testing.T) {
	docs := map[string][]concept.Raw{rules.Container: {concept.NewRaw("vial", "Vial")}}
	out := &memorySink{}

	u := NewUpdater(rules.Default(), staticLoader(docs), WithSink(out))
	report, err := u.Update(context.Background(), rules.Container)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, rules.Container, report.Outcomes[0].Name)
	assert.Len(t, out.written, 1)
}

func TestUpdater_UnknownCodelist(t *testing.T) {
	u := NewUpdater(rules.Default(), staticLoader(nil))
	_, err := u.Update(context.Background(), rules.Container, "nope")
	assert.ErrorIs(t, err, rules.ErrUnknownCodelist)
}

func TestUpdater_FailureIsolated(t *testing.T) {
	docs := map[string][]concept.Raw{
		rules.Container: {concept.NewRaw("box", "Box")},
		rules.DosageForm: {
			concept.NewRaw("TAB", "Tablet", "status", "active", "status", "retired"),
		},
	}
	out := &memorySink{}
	var logs bytes.Buffer

	u := NewUpdater(rules.Default(), staticLoader(docs),
		WithSink(out),
		WithLogger(zerolog.New(zerolog.SyncWriter(&logs))),
		WithEngine(engine.New(cl.WithWorkerCount(1))),
	)
	report, err := u.Update(context.Background())
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, rules.AdministrationRoute, failed[0].Name)
	assert.ErrorIs(t, failed[0].Err, ErrNotFound)
	assert.Equal(t, rules.DosageForm, failed[1].Name)
	assert.ErrorIs(t, failed[1].Err, stage.ErrConflict)
	require.NotNil(t, failed[1].Result)
	assert.True(t, failed[1].Result.HasErrors())

	assert.False(t, report.OK())
	assert.Len(t, out.written, 1)
	assert.Contains(t, out.written, rules.Container)
	assert.Contains(t, logs.String(), "normalization failed")
}

func TestUpdater_SinkError(t *testing.T) {
	docs := map[string][]concept.Raw{rules.Container: {concept.NewRaw("box", "Box")}}
	boom := errors.New("disk full")

	u := NewUpdater(rules.Default(), staticLoader(docs), WithSink(&memorySink{err: boom}))
	report, err := u.Update(context.Background(), rules.Container)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.ErrorIs(t, report.Outcomes[0].Err, boom)
	assert.False(t, report.Outcomes[0].Written)
	assert.NotNil(t, report.Outcomes[0].Result)
}

func TestUpdater_NoSink(t *testing.T) {
	docs := map[string][]concept.Raw{rules.Container: {concept.NewRaw("box", "Box")}}

	u := NewUpdater(rules.Default(), staticLoader(docs))
	report, err := u.Update(context.Background(), rules.Container)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.False(t, report.Outcomes[0].Written)
}

func TestSourceChain(t *testing.T) {
	first := staticLoader(map[string][]concept.Raw{rules.Container: {concept.NewRaw("a", "A")}})
	second := staticLoader(map[string][]concept.Raw{
		rules.Container:  {concept.NewRaw("b", "B")},
		rules.DosageForm: {concept.NewRaw("c", "C")},
	})
	chain := NewSourceChain(first, second)

	list, err := rules.Default().Get(rules.Container)
	require.NoError(t, err)
	doc, err := chain.Load(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Concepts[0].Code)

	list, err = rules.Default().Get(rules.DosageForm)
	require.NoError(t, err)
	doc, err = chain.Load(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, "c", doc.Concepts[0].Code)

	list, err = rules.Default().Get(rules.AdministrationRoute)
	require.NoError(t, err)
	_, err = chain.Load(context.Background(), list)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSourceChain_StopsOnError(t *testing.T) {
	boom := errors.New("network down")
	failing := SourceLoaderFunc(func(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
		return nil, boom
	})
	chain := NewSourceChain(failing)
	chain.Add(staticLoader(map[string][]concept.Raw{rules.Container: nil}))

	list, err := rules.Default().Get(rules.Container)
	require.NoError(t, err)
	_, err = chain.Load(context.Background(), list)
	assert.ErrorIs(t, err, boom)
}

func TestMirror(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile("../source/testdata/orderable-drug-form.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, rules.DosageForm+".json"), data, 0o600))

	mirror := NewMirror(dir, nil)

	list, err := rules.Default().Get(rules.DosageForm)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dosageForm.json"), mirror.Path(list))

	doc, err := mirror.Load(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, "http://terminology.hl7.org/CodeSystem/v3-orderableDrugForm", doc.URL)
	assert.Len(t, doc.Concepts, 7)

	list, err = rules.Default().Get(rules.Container)
	require.NoError(t, err)
	_, err = mirror.Load(context.Background(), list)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdater_Progress(t *testing.T) {
	docs := map[string][]concept.Raw{rules.Container: {concept.NewRaw("box", "Box")}}

	var seen []string
	u := NewUpdater(rules.Default(), staticLoader(docs),
		WithWorkers(3),
		WithProgress(func(o Outcome) { seen = append(seen, o.Name) }),
	)
	report, err := u.Update(context.Background(), rules.Container, rules.DosageForm, rules.Container)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{rules.Container, rules.DosageForm, rules.Container}, seen)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, rules.Container, report.Outcomes[0].Name)
	assert.Equal(t, rules.DosageForm, report.Outcomes[1].Name)
	assert.Equal(t, rules.Container, report.Outcomes[2].Name)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.ErrorIs(t, report.Outcomes[1].Err, ErrNotFound)
}
