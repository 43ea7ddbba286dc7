package plugin

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"strcluster/internal/cluster"
	"strcluster/internal/ui/panel"
)

// StringClusterName is the name and panel title of the string cluster plugin.
const StringClusterName = "StringCluster"

// DefaultHotkey opens the string cluster panel.
const DefaultHotkey = "alt+s"

// StringCluster groups the strings of the loaded binary by referencing
// function.
type StringCluster struct {
	hotkey  string
	percent int
	host    Host
}

// NewStringCluster returns the plugin bound to hotkey. funcPercent caps the
// function column width; zero keeps the panel default.
func NewStringCluster(hotkey string, funcPercent int) *StringCluster {
	if hotkey == "" {
		hotkey = DefaultHotkey
	}
	return &StringCluster{hotkey: hotkey, percent: funcPercent}
}

func (s *StringCluster) Name() string   { return StringClusterName }
func (s *StringCluster) Hotkey() string { return s.hotkey }

func (s *StringCluster) Init(h Host) error {
	s.host = h
	return nil
}

// Activate aggregates the binary again and opens a panel on a new session.
func (s *StringCluster) Activate(ctx context.Context) (Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.host == nil || s.host.Source() == nil {
		return nil, ErrNoSource
	}
	start := time.Now()
	sess := cluster.Open(s.host.Source(), s.host.Navigator(), s.host.Options())
	log.Debug("string cluster opened", "functions", sess.Buckets().Len(),
		"strings", sess.Buckets().StringCount(), "elapsed", time.Since(start))
	return panel.New(sess, panel.Options{FunctionPercent: s.percent}), nil
}

func (s *StringCluster) Shutdown() error {
	s.host = nil
	return nil
}

var (
	_ Plugin = (*StringCluster)(nil)
	_ Panel  = (*panel.Panel)(nil)
)
