package recognition

// Observation is one resolved detection: a catalog match plus the
// catalog fields as they stood when the match was made.
type Observation struct {
	MedicineID string
	Name       string
	Price      float64
	Discount   float64
	Stock      int
	RawText    string
}

// Line is one aggregated billing line. Price, discount and stock are
// pinned to the first observation of the medicine.
type Line struct {
	MedicineID string  `json:"medicine_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Discount   float64 `json:"discount"`
	Count      int     `json:"count"`
	Stock      int     `json:"stock"`
}

// OutOfStockLine reports a detection whose medicine had zero stock.
// RawText carries the original segment for diagnostics.
type OutOfStockLine struct {
	Name    string `json:"medicine"`
	RawText string `json:"debug_text"`
}

// Aggregator folds repeated detections of the same medicine into one
// counted line, preserving first-seen order. Not safe for concurrent
// use; build one per scan request.
type Aggregator struct {
	byName map[string]*Line
	order  []string
	oos    []OutOfStockLine
}

func NewAggregator() *Aggregator {
	return &Aggregator{byName: make(map[string]*Line)}
}

// Observe records one detection. Zero-stock matches become out-of-stock
// lines instead of aggregating.
func (a *Aggregator) Observe(obs Observation) {
	if obs.Stock <= 0 {
		a.oos = append(a.oos, OutOfStockLine{Name: obs.Name, RawText: obs.RawText})
		return
	}

	if line, ok := a.byName[obs.Name]; ok {
		line.Count++
		return
	}

	a.byName[obs.Name] = &Line{
		MedicineID: obs.MedicineID,
		Name:       obs.Name,
		Price:      obs.Price,
		Discount:   obs.Discount,
		Count:      1,
		Stock:      obs.Stock,
	}
	a.order = append(a.order, obs.Name)
}

// Lines returns the aggregated lines in first-seen order.
func (a *Aggregator) Lines() []Line {
	lines := make([]Line, 0, len(a.order))
	for _, name := range a.order {
		lines = append(lines, *a.byName[name])
	}
	return lines
}

// OutOfStock returns the zero-stock detections in observation order.
func (a *Aggregator) OutOfStock() []OutOfStockLine {
	return a.oos
}

// Empty reports whether nothing at all was observed.
func (a *Aggregator) Empty() bool {
	return len(a.byName) == 0 && len(a.oos) == 0
}
