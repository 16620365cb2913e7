package processor

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
	DataTypeBytes
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	case DataTypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// DSPWorker is one stage of a Processor chain.
type DSPWorker struct {
	Name        string
	DisplayName string
	InputRate   int
	OutputRate  int

	inputDataType  DataType
	outputDataType DataType

	cfWorker CFWorker
	ffWorker FFWorker
	fbWorker FBWorker
}

func baseWorker(name, displayName string, inputRate, outputRate int) *DSPWorker {
	return &DSPWorker{
		Name:        name,
		DisplayName: displayName,
		InputRate:   inputRate,
		OutputRate:  outputRate,
	}
}

func NewDSPWorkerCF(name, displayName string, inputRate, outputRate int, worker CFWorker) *DSPWorker {
	ret := baseWorker(name, displayName, inputRate, outputRate)
	ret.inputDataType = DataTypeComplex
	ret.outputDataType = DataTypeFloat
	ret.cfWorker = worker
	return ret
}

func NewDSPWorkerFF(name, displayName string, inputRate, outputRate int, worker FFWorker) *DSPWorker {
	ret := baseWorker(name, displayName, inputRate, outputRate)
	ret.inputDataType = DataTypeFloat
	ret.outputDataType = DataTypeFloat
	ret.ffWorker = worker
	return ret
}

func NewDSPWorkerFB(name, displayName string, inputRate, outputRate int, worker FBWorker) *DSPWorker {
	ret := baseWorker(name, displayName, inputRate, outputRate)
	ret.inputDataType = DataTypeFloat
	ret.outputDataType = DataTypeBytes
	ret.fbWorker = worker
	return ret
}

// Complex in, float out
type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}

type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

// Float in, encoded bytes out
type FBWorker interface {
	WorkBuffer([]float32, []byte) int
	PredictOutputSize(int) int
}
