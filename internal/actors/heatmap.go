package actors

import (
	"math"
	"sync"

	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat"
)

// DefaultHeatMapCellSize is the default grid cell edge in meters.
const DefaultHeatMapCellSize = 0.25

// HeatMap counts where actors stand on the floor of a tracking area. The
// grid spans the area's X/Z extent; columns run along X, rows along Z.
// HeatMap is safe for concurrent use.
type HeatMap struct {
	mu       sync.Mutex
	area     geom.Bounds
	cellSize float64
	cols     int
	rows     int
	counts   []float64
	samples  int
}

// HeatMapStats summarizes the cell counts.
type HeatMapStats struct {
	Samples int     `json:"samples"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
}

// NewHeatMap returns a heat map over area. A non-positive cellSize uses
// DefaultHeatMapCellSize.
func NewHeatMap(area geom.Bounds, cellSize float64) *HeatMap {
	if cellSize <= 0 {
		cellSize = DefaultHeatMapCellSize
	}
	cols := max(1, int(math.Ceil(area.Size.X()/cellSize)))
	rows := max(1, int(math.Ceil(area.Size.Z()/cellSize)))
	return &HeatMap{
		area:     area,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		counts:   make([]float64, cols*rows),
	}
}

// Dims returns the number of columns and rows.
func (h *HeatMap) Dims() (cols, rows int) { return h.cols, h.rows }

// CellSize returns the cell edge in meters.
func (h *HeatMap) CellSize() float64 { return h.cellSize }

// cellOf returns the cell index of p, or -1 when p is outside the area.
func (h *HeatMap) cellOf(p mgl64.Vec3) int {
	lo, hi := h.area.Min(), h.area.Max()
	if p.X() < lo.X() || p.X() > hi.X() || p.Z() < lo.Z() || p.Z() > hi.Z() {
		return -1
	}
	col := min(int((p.X()-lo.X())/h.cellSize), h.cols-1)
	row := min(int((p.Z()-lo.Z())/h.cellSize), h.rows-1)
	return row*h.cols + col
}

// Add records the floor position of every actor inside the area.
func (h *HeatMap) Add(actors []*Actor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range actors {
		h.addLocked(a.FloorPosition())
	}
}

// AddPoint records a single floor position.
func (h *HeatMap) AddPoint(p mgl64.Vec3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(p)
}

func (h *HeatMap) addLocked(p mgl64.Vec3) {
	if i := h.cellOf(p); i >= 0 {
		h.counts[i]++
		h.samples++
	}
}

// Cell returns the count at col, row.
func (h *HeatMap) Cell(col, row int) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[row*h.cols+col]
}

// Snapshot returns a copy of the counts, row-major.
func (h *HeatMap) Snapshot() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Stats returns summary statistics of the cell counts.
func (h *HeatMap) Stats() HeatMapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HeatMapStats{Samples: h.samples}
	for _, c := range h.counts {
		s.Max = math.Max(s.Max, c)
	}
	if len(h.counts) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(h.counts, nil)
	} else {
		s.Mean = stat.Mean(h.counts, nil)
	}
	return s
}

// Reset clears all counts.
func (h *HeatMap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.counts)
	h.samples = 0
}
