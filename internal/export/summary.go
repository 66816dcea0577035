package export

import (
	"gonum.org/v1/gonum/stat"

	"neurosim/internal/model"
	"neurosim/internal/topology"
)

type NeuronSummary struct {
	Neuron int     `json:"neuron"`
	Spikes int     `json:"spikes"`
	RateHz float64 `json:"rate_hz"`
	// MeanISI is in ms; zero with fewer than two spikes.
	MeanISI float64 `json:"mean_isi_ms"`
	// ISICV is zero with fewer than three spikes.
	ISICV float64 `json:"isi_cv"`
}

type Summary struct {
	RunID       string            `json:"run_id"`
	Seed        int64             `json:"seed"`
	Neurons     int               `json:"neurons"`
	DurationMs  float64           `json:"duration_ms"`
	TotalSpikes int               `json:"total_spikes"`
	MeanRateHz  float64           `json:"mean_rate_hz"`
	PerNeuron   []NeuronSummary   `json:"per_neuron"`
	Topology    *topology.Summary `json:"topology,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Summarize derives firing statistics from a bundle. The recorded duration is
// the number of trace samples times dt.
func Summarize(b model.ResultBundle) Summary {
	s := Summary{
		RunID:       b.RunID,
		Seed:        b.Seed,
		Neurons:     b.NeuronCount,
		DurationMs:  float64(len(b.Voltage)) * b.Dt,
		TotalSpikes: len(b.Spikes),
		PerNeuron:   make([]NeuronSummary, b.NeuronCount),
		Warnings:    b.Warnings,
	}
	seconds := s.DurationMs / 1000

	rates := make([]float64, b.NeuronCount)
	for i := range s.PerNeuron {
		times := b.SpikesFor(i)
		ns := NeuronSummary{Neuron: i, Spikes: len(times)}
		if seconds > 0 {
			ns.RateHz = float64(len(times)) / seconds
		}
		if len(times) >= 2 {
			isi := make([]float64, len(times)-1)
			for k := 1; k < len(times); k++ {
				isi[k-1] = times[k] - times[k-1]
			}
			if len(isi) >= 2 {
				mean, std := stat.MeanStdDev(isi, nil)
				ns.MeanISI = mean
				if mean > 0 {
					ns.ISICV = std / mean
				}
			} else {
				ns.MeanISI = isi[0]
			}
		}
		rates[i] = ns.RateHz
		s.PerNeuron[i] = ns
	}
	if len(rates) > 0 {
		s.MeanRateHz = stat.Mean(rates, nil)
	}
	if b.Connectivity != nil {
		summary := topology.Analyze(*b.Connectivity)
		s.Topology = &summary
	}
	return s
}
