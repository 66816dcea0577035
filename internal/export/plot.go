package export

import (
	"neurosim/internal/model"
	"neurosim/internal/topology"
)

type PlotPoint struct {
	TimeMs float64 `json:"t"`
	Value  float64 `json:"v"`
}

type VoltageSeries struct {
	Neuron int         `json:"neuron"`
	Label  string      `json:"label"`
	Points []PlotPoint `json:"points"`
}

type RasterPoint struct {
	TimeMs float64 `json:"t"`
	Neuron int     `json:"neuron"`
}

type TopologyView struct {
	Graph   model.ConnectivityGraph `json:"graph"`
	Summary topology.Summary        `json:"summary"`
}

// PlotData holds the views a renderer draws for one output type. Views that
// the output type does not select stay nil.
type PlotData struct {
	OutputType model.OutputType `json:"output_type"`
	Voltage    []VoltageSeries  `json:"voltage,omitempty"`
	Raster     []RasterPoint    `json:"raster,omitempty"`
	Topology   *TopologyView    `json:"topology,omitempty"`
}

func BuildPlotData(b model.ResultBundle, outputType model.OutputType) (PlotData, error) {
	data := PlotData{OutputType: outputType}
	var voltage, raster, graph bool
	switch outputType {
	case model.OutputVoltage:
		voltage = true
	case model.OutputRaster:
		raster = true
	case model.OutputBoth:
		voltage, raster = true, true
	case model.OutputAll:
		voltage, raster, graph = true, true, true
	default:
		return PlotData{}, &model.InvalidParameterError{Field: "output_type", Value: outputType, Reason: "must be voltage, raster, both or all"}
	}

	if voltage {
		data.Voltage = BuildVoltageSeries(b)
	}
	if raster {
		data.Raster = BuildRasterPoints(b)
	}
	if graph && b.Connectivity != nil {
		data.Topology = &TopologyView{
			Graph:   b.Connectivity.Clone(),
			Summary: topology.Analyze(*b.Connectivity),
		}
	}
	return data, nil
}

func BuildVoltageSeries(b model.ResultBundle) []VoltageSeries {
	series := make([]VoltageSeries, b.NeuronCount)
	for i := range series {
		series[i] = VoltageSeries{
			Neuron: i,
			Label:  NeuronKey(i),
			Points: make([]PlotPoint, 0, len(b.Voltage)),
		}
	}
	for _, sample := range b.Voltage {
		for i := 0; i < b.NeuronCount && i < len(sample.V); i++ {
			series[i].Points = append(series[i].Points, PlotPoint{TimeMs: sample.Time, Value: sample.V[i]})
		}
	}
	return series
}

func BuildRasterPoints(b model.ResultBundle) []RasterPoint {
	points := make([]RasterPoint, 0, len(b.Spikes))
	for _, s := range b.Spikes {
		points = append(points, RasterPoint{TimeMs: s.Time, Neuron: s.Neuron})
	}
	return points
}
