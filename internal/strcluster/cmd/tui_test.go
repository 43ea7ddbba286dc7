package cmd

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strcluster/internal/config"
	"strcluster/internal/ui/panel"
)

func keyPress(code rune, mod tea.KeyMod) tea.Msg {
	return tea.KeyPressMsg{Code: code, Mod: mod}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func loadedModel(t *testing.T, opts modelOptions) model {
	t.Helper()
	return loadedModelWith(t, config.Default(), opts)
}

func loadedModelWith(t *testing.T, cfg config.Config, opts modelOptions) model {
	t.Helper()
	t.Setenv("STRCLUSTER_NO_COLOR", "1")
	m := NewModel(context.Background(), "testdata/tiny.so", cfg, opts)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, engineLoadedMsg{engine: testEngine(t)})
	return m
}

func TestModelLoad(t *testing.T) {
	m := loadedModel(t, modelOptions{})

	assert.False(t, m.loading)
	assert.Equal(t, viewOverview, m.mode)
	require.Len(t, m.functions.Items(), 2)
	assert.Equal(t, functionItem{start: 0x400000, name: "main", strings: 1}, m.functions.Items()[0])

	out := m.View()
	assert.Contains(t, out, "StringCluster")
	assert.Contains(t, out, "alt+s: strings")

	m, _ = update(t, m, digestCalculatedMsg{digest: "abc123"})
	assert.Equal(t, "abc123", m.digest)
	assert.False(t, m.loadingDigest)
}

func TestModelLoadError(t *testing.T) {
	m := NewModel(context.Background(), "testdata/tiny.so", config.Default(), modelOptions{})
	m, _ = update(t, m, engineLoadedMsg{err: errors.New("not an ELF file")})
	assert.Equal(t, "not an ELF file", m.loadErr.Error())
	assert.Contains(t, m.View(), " Q: quit ")

	m, _ = update(t, m, keyPress('s', tea.ModAlt))
	assert.Equal(t, viewOverview, m.mode, "nothing to cluster")
	assert.Contains(t, m.status, "no binary loaded")
}

func TestModelPanelFlow(t *testing.T) {
	m := loadedModel(t, modelOptions{})

	m, cmd := update(t, m, keyPress('s', tea.ModAlt))
	require.Equal(t, viewPanel, m.mode)
	require.NotNil(t, m.panel)
	_ = cmd
	assert.Contains(t, m.View(), "3 strings")

	m, _ = update(t, m, keyPress(tea.KeyTab, 0))
	m, _ = update(t, m, keyPress(tea.KeyEnter, 0))
	require.Equal(t, viewListing, m.mode, "activating a row shows the listing")
	assert.Equal(t, viewPanel, m.back)
	assert.Contains(t, m.View(), "main:")

	m, _ = update(t, m, keyPress(tea.KeyEscape, 0))
	require.Equal(t, viewPanel, m.mode, "the panel keeps its state")

	m, cmd = update(t, m, keyPress(tea.KeyEscape, 0))
	require.NotNil(t, cmd)
	closeMsg := cmd()
	assert.Equal(t, panel.CloseMsg{}, closeMsg)

	m, _ = update(t, m, closeMsg)
	assert.Equal(t, viewOverview, m.mode)
	assert.Nil(t, m.panel)
}

func TestModelOpenWithQuery(t *testing.T) {
	m := loadedModel(t, modelOptions{Open: true, Query: "hello"})

	require.Equal(t, viewPanel, m.mode)
	p, ok := m.panel.(*panel.Panel)
	require.True(t, ok)
	assert.Equal(t, "hello", p.Session().Query())
	assert.Equal(t, "1 strings", p.Session().Label())
}

func TestModelOpenWithQueryWithoutLiveSearch(t *testing.T) {
	cfg := config.Default()
	cfg.LiveSearch = false
	m := loadedModelWith(t, cfg, modelOptions{Open: true, Query: "hello"})

	p, ok := m.panel.(*panel.Panel)
	require.True(t, ok)
	assert.False(t, p.Session().Options().LiveSearch)
	assert.Equal(t, "1 strings", p.Session().Label(), "the initial query is applied")
	assert.NotContains(t, p.View(), "second one")
}

func TestModelFunctionsListing(t *testing.T) {
	m := loadedModel(t, modelOptions{})

	m, _ = update(t, m, keyPress('f', 0))
	require.Equal(t, viewFunctions, m.mode)
	assert.Contains(t, m.View(), "Functions (2 total)")

	m, _ = update(t, m, keyPress(tea.KeyEnter, 0))
	require.Equal(t, viewListing, m.mode)
	assert.Contains(t, m.View(), "main:")

	m, _ = update(t, m, keyPress(tea.KeyEscape, 0))
	assert.Equal(t, viewFunctions, m.mode)

	m, _ = update(t, m, keyPress(tea.KeyTab, 0))
	assert.Equal(t, viewOverview, m.mode)
}

func TestModelQuit(t *testing.T) {
	m := loadedModel(t, modelOptions{})
	_, cmd := update(t, m, keyPress('q', 0))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestJumpQueue(t *testing.T) {
	q := &jumpQueue{}
	q.JumpTo(1)
	q.JumpTo(2)
	assert.Equal(t, []uint64{1, 2}, q.drain())
	assert.Empty(t, q.drain())
}
