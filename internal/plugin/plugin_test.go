package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strcluster/internal/cluster"
	"strcluster/internal/ui/panel"
)

type fakeSource struct{}

func (fakeSource) Strings() []cluster.StringRecord {
	return []cluster.StringRecord{
		cluster.NewStringRecord(0x1000, "hello"),
		cluster.NewStringRecord(0x1010, "world"),
	}
}

func (fakeSource) XrefsTo(addr uint64) []uint64 {
	if addr == 0x1000 {
		return []uint64{0x2004}
	}
	return nil
}

func (fakeSource) FunctionOf(addr uint64) (cluster.Function, bool) {
	if addr >= 0x2000 && addr < 0x2100 {
		return cluster.Function{Start: 0x2000, Name: "main"}, true
	}
	return cluster.Function{}, false
}

type fakeHost struct {
	src   cluster.Source
	jumps []uint64
}

func (h *fakeHost) Source() cluster.Source { return h.src }
func (h *fakeHost) Navigator() cluster.Navigator {
	return cluster.NavigatorFunc(func(addr uint64) { h.jumps = append(h.jumps, addr) })
}
func (h *fakeHost) Options() cluster.Options {
	return cluster.Options{HideNonMatching: true, LiveSearch: true}
}

type stubPlugin struct {
	name, key   string
	initErr     error
	shutdownErr error
	shutdowns   *[]string
}

func (s *stubPlugin) Name() string      { return s.name }
func (s *stubPlugin) Hotkey() string    { return s.key }
func (s *stubPlugin) Init(_ Host) error { return s.initErr }
func (s *stubPlugin) Activate(context.Context) (Panel, error) {
	return nil, errors.New("not implemented")
}
func (s *stubPlugin) Shutdown() error {
	if s.shutdowns != nil {
		*s.shutdowns = append(*s.shutdowns, s.name)
	}
	return s.shutdownErr
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewStringCluster("", 0)))
	require.NoError(t, r.Register(&stubPlugin{name: "Other", key: "alt+o"}))

	err := r.Register(&stubPlugin{name: StringClusterName, key: "alt+x"})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
	err = r.Register(&stubPlugin{name: "Third", key: "alt+s"})
	assert.ErrorIs(t, err, ErrDuplicateHotkey)

	p, ok := r.Lookup("alt+s")
	require.True(t, ok)
	assert.Equal(t, StringClusterName, p.Name())
	_, ok = r.Lookup("alt+z")
	assert.False(t, ok)

	_, ok = r.Get("Other")
	assert.True(t, ok)

	var names []string
	for _, p := range r.All() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{StringClusterName, "Other"}, names)
}

func TestRegistryLifecycle(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	r := NewRegistry()
	require.NoError(t, r.Register(&stubPlugin{name: "a", key: "1", shutdowns: &order}))
	require.NoError(t, r.Register(&stubPlugin{name: "b", key: "2", shutdowns: &order, shutdownErr: boom}))

	require.NoError(t, r.InitAll(&fakeHost{}))
	err := r.ShutdownAll()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"b", "a"}, order)

	r = NewRegistry()
	require.NoError(t, r.Register(&stubPlugin{name: "a", key: "1", initErr: boom}))
	assert.ErrorIs(t, r.InitAll(&fakeHost{}), boom)
}

func TestStringClusterActivate(t *testing.T) {
	sc := NewStringCluster("alt+k", 30)
	assert.Equal(t, "alt+k", sc.Hotkey())

	_, err := sc.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	host := &fakeHost{}
	require.NoError(t, sc.Init(host))
	_, err = sc.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	host.src = fakeSource{}
	got, err := sc.Activate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StringClusterName, got.Title())

	p := got.(*panel.Panel)
	assert.Equal(t, "2 strings", p.Session().Label())
	labels := []string{}
	for _, b := range p.Session().Buckets().All() {
		labels = append(labels, b.Label())
	}
	assert.Equal(t, []string{"main (1)", "0_sub (1)"}, labels)

	again, err := sc.Activate(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, p.Session(), again.(*panel.Panel).Session(), "every activation starts a new session")

	p.Session().Activate(p.Session().Tree().Roots[0])
	assert.Equal(t, []uint64{0x2000}, host.jumps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sc.Activate(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, sc.Shutdown())
	_, err = sc.Activate(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
}
