// Package export writes run results as CSV, JSON and DOT files and prepares
// the data a plotting front end needs.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"neurosim/internal/model"
)

const (
	TimeColumn    = "Time(ms)"
	NeuronColumn  = "Neuron"
	VoltageUnit   = "mV"
	neuronKeyBase = "Neuron_"
)

// NeuronKey names neuron i in exported headers and JSON objects.
func NeuronKey(i int) string {
	return neuronKeyBase + strconv.Itoa(i)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteVoltageCSV writes one row per trace sample: the time followed by the
// membrane potential of every neuron.
func WriteVoltageCSV(w io.Writer, b model.ResultBundle) error {
	writer := csv.NewWriter(w)
	header := make([]string, 0, b.NeuronCount+1)
	header = append(header, TimeColumn)
	for i := 0; i < b.NeuronCount; i++ {
		header = append(header, NeuronKey(i))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for k, sample := range b.Voltage {
		if len(sample.V) != b.NeuronCount {
			return fmt.Errorf("voltage sample %d has %d neurons, want %d", k, len(sample.V), b.NeuronCount)
		}
		row[0] = formatFloat(sample.Time)
		for i, v := range sample.V {
			row[i+1] = formatFloat(v)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSpikesCSV writes one row per spike in time order.
func WriteSpikesCSV(w io.Writer, b model.ResultBundle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{TimeColumn, NeuronColumn}); err != nil {
		return err
	}
	for _, s := range b.Spikes {
		if err := writer.Write([]string{formatFloat(s.Time), strconv.Itoa(s.Neuron)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// VoltageDocument is the column-oriented JSON form of a voltage trace.
type VoltageDocument struct {
	TimeMs  []float64            `json:"time_ms"`
	Neurons map[string][]float64 `json:"neurons"`
	Unit    string               `json:"unit"`
}

func NewVoltageDocument(b model.ResultBundle) VoltageDocument {
	doc := VoltageDocument{
		TimeMs:  make([]float64, 0, len(b.Voltage)),
		Neurons: make(map[string][]float64, b.NeuronCount),
		Unit:    VoltageUnit,
	}
	columns := make([][]float64, b.NeuronCount)
	for i := range columns {
		columns[i] = make([]float64, 0, len(b.Voltage))
	}
	for _, sample := range b.Voltage {
		doc.TimeMs = append(doc.TimeMs, sample.Time)
		for i := 0; i < b.NeuronCount && i < len(sample.V); i++ {
			columns[i] = append(columns[i], sample.V[i])
		}
	}
	for i, column := range columns {
		doc.Neurons[NeuronKey(i)] = column
	}
	return doc
}

func WriteVoltageJSON(w io.Writer, b model.ResultBundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewVoltageDocument(b))
}
