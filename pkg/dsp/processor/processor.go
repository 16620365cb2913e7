package processor

import (
	"errors"
	"fmt"
	"time"
)

// Processor runs a block of samples through a chain of workers. The chain
// must start with a complex input stage and the data types and rates of
// neighbouring stages must line up.
type Processor struct {
	Name        string
	blocks      []*DSPWorker
	initialized bool
}

func NewProcessor(name string) *Processor {
	return &Processor{Name: name}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
	p.initialized = false
}

func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) == 0 {
		return fmt.Errorf("%s: no blocks", p.Name)
	}
	if p.blocks[0].inputDataType != DataTypeComplex {
		return fmt.Errorf("%s: first block %s takes %s input, want complex", p.Name, p.blocks[0].Name, p.blocks[0].inputDataType)
	}

	cur := p.blocks[0]
	for _, next := range p.blocks[1:] {
		if cur.outputDataType != next.inputDataType {
			return fmt.Errorf("cur: %s next %s data type mismatch (%s %s)", cur.Name, next.Name, cur.outputDataType, next.inputDataType)
		}
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
		cur = next
	}

	p.initialized = true
	return nil
}

func (p *Processor) OutputRate() int {
	if len(p.blocks) == 0 {
		return 0
	}
	return p.blocks[len(p.blocks)-1].OutputRate
}

func (p *Processor) process(input []complex64, expectedOutputType DataType, metrics map[string]interface{}) ([]float32, []byte, error) {
	if err := p.Initialize(); err != nil {
		return nil, nil, err
	}
	if last := p.blocks[len(p.blocks)-1]; last.outputDataType != expectedOutputType {
		return nil, nil, fmt.Errorf("invalid output type: got %s expected %s", last.outputDataType, expectedOutputType)
	}

	var floatData []float32
	var byteData []byte

	for _, block := range p.blocks {
		start := time.Now()

		switch block.inputDataType {
		case DataTypeComplex:
			out := make([]float32, block.cfWorker.PredictOutputSize(len(input)))
			floatData = out[:block.cfWorker.WorkBuffer(input, out)]
		case DataTypeFloat:
			switch block.outputDataType {
			case DataTypeFloat:
				out := make([]float32, block.ffWorker.PredictOutputSize(len(floatData)))
				floatData = out[:block.ffWorker.WorkBuffer(floatData, out)]
			case DataTypeBytes:
				out := make([]byte, block.fbWorker.PredictOutputSize(len(floatData)))
				byteData = out[:block.fbWorker.WorkBuffer(floatData, out)]
			}
		default:
			return nil, nil, errors.New("unsupported block input")
		}

		if metrics != nil {
			metrics[fmt.Sprintf("%s_duration", block.Name)] = time.Since(start).Microseconds()
		}
	}

	return floatData, byteData, nil
}

func (p *Processor) ProcessComplexToFloat(input []complex64, metrics map[string]interface{}) ([]float32, error) {
	out, _, err := p.process(input, DataTypeFloat, metrics)
	return out, err
}

func (p *Processor) ProcessComplexToBinary(input []complex64, metrics map[string]interface{}) ([]byte, error) {
	_, out, err := p.process(input, DataTypeBytes, metrics)
	return out, err
}
