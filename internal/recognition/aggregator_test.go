package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_RepeatedObservations(t *testing.T) {
	a := NewAggregator()

	obs := Observation{MedicineID: "m1", Name: "Dolo 650", Price: 30, Stock: 12, RawText: "dolo 650"}
	a.Observe(obs)
	a.Observe(obs)
	a.Observe(obs)

	lines := a.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Count)
	assert.Equal(t, "Dolo 650", lines[0].Name)
	assert.Empty(t, a.OutOfStock())
}

func TestAggregator_PinsFirstObservation(t *testing.T) {
	a := NewAggregator()

	a.Observe(Observation{MedicineID: "m1", Name: "Dolo 650", Price: 30, Stock: 12})
	// later observation with different figures must not change the line
	a.Observe(Observation{MedicineID: "m1", Name: "Dolo 650", Price: 45, Stock: 5})

	lines := a.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 30.0, lines[0].Price)
	assert.Equal(t, 12, lines[0].Stock)
	assert.Equal(t, 2, lines[0].Count)
}

func TestAggregator_FirstSeenOrder(t *testing.T) {
	a := NewAggregator()

	a.Observe(Observation{MedicineID: "m2", Name: "Crocin Advance", Price: 20, Stock: 8})
	a.Observe(Observation{MedicineID: "m1", Name: "Dolo 650", Price: 30, Stock: 12})
	a.Observe(Observation{MedicineID: "m2", Name: "Crocin Advance", Price: 20, Stock: 8})

	lines := a.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Crocin Advance", lines[0].Name)
	assert.Equal(t, "Dolo 650", lines[1].Name)
}

func TestAggregator_OutOfStock(t *testing.T) {
	a := NewAggregator()

	a.Observe(Observation{MedicineID: "m3", Name: "Azithral 500", Price: 90, Stock: 0, RawText: "AZITHRAL-500 Tablet"})
	a.Observe(Observation{MedicineID: "m1", Name: "Dolo 650", Price: 30, Stock: 12})

	assert.Len(t, a.Lines(), 1)

	oos := a.OutOfStock()
	require.Len(t, oos, 1)
	assert.Equal(t, "Azithral 500", oos[0].Name)
	assert.Equal(t, "AZITHRAL-500 Tablet", oos[0].RawText)
	assert.False(t, a.Empty())
}

func TestAggregator_Empty(t *testing.T) {
	a := NewAggregator()
	assert.True(t, a.Empty())
	assert.Empty(t, a.Lines())
}
