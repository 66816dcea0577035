package model

type NeuronModel string

const (
	ModelLIF        NeuronModel = "lif"
	ModelIzhikevich NeuronModel = "izhikevich"
	ModelAdEx       NeuronModel = "adex"
	ModelCustom     NeuronModel = "custom"
)

// NeuronParams is the closed set of per-model parameter records. Only the
// types in this package implement it.
type NeuronParams interface {
	Kind() NeuronModel
	neuronParams()
}

// LIFParams configures the leaky integrate-and-fire model. A zero Tau selects
// the unit time constant.
type LIFParams struct {
	Threshold float64
	Reset     float64
	Tau       float64
}

type IzhikevichParams struct {
	A, B, C, D float64
}

type AdExParams struct {
	A      float64
	B      float64
	DeltaT float64
	TauW   float64
}

// CustomParams carries user-written model text.
type CustomParams struct {
	Equations string
	Threshold string
	Reset     string
}

func (LIFParams) Kind() NeuronModel        { return ModelLIF }
func (IzhikevichParams) Kind() NeuronModel { return ModelIzhikevich }
func (AdExParams) Kind() NeuronModel       { return ModelAdEx }
func (CustomParams) Kind() NeuronModel     { return ModelCustom }

func (LIFParams) neuronParams()        {}
func (IzhikevichParams) neuronParams() {}
func (AdExParams) neuronParams()       {}
func (CustomParams) neuronParams()     {}
