package dataset

import (
	"fmt"
	"strings"
)

// Mode is the embedding a dataset is opened with.
type Mode string

const (
	ModeUMAP        Mode = "umap"
	ModeTSNE        Mode = "tsne"
	ModeDrawGraphFA Mode = "draw_graph_fa"
	ModeDrawGraphFR Mode = "draw_graph_fr"
	ModeDiffmap     Mode = "diffmap"
	ModePHATE       Mode = "phate"
)

// Modes lists the selectable embeddings in display order. The first is the default.
var Modes = []Mode{ModeUMAP, ModeTSNE, ModeDrawGraphFA, ModeDrawGraphFR, ModeDiffmap, ModePHATE}

func DefaultMode() Mode {
	return Modes[0]
}

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown embedding %q", s)
}

// Key is the name of the embedding matrix inside the dataset, e.g. X_umap.
func (m Mode) Key() string {
	return "X_" + string(m)
}

func ModeNames() []string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return names
}
