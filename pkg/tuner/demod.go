package tuner

import (
	"fmt"

	"github.com/norasector/tuner/pkg/dsp/audio"
	"github.com/norasector/tuner/pkg/dsp/demodulators/am"
	"github.com/norasector/tuner/pkg/dsp/demodulators/quad"
	"github.com/norasector/tuner/pkg/dsp/demodulators/ssb"
	"github.com/norasector/tuner/pkg/dsp/processor"
)

func demodulatorFor(mode Mode) processor.CFWorker {
	switch mode {
	case ModeAM:
		return am.NewEnvelopeDemod()
	case ModeUSB:
		return ssb.NewDemod(ssb.Upper)
	case ModeLSB:
		return ssb.NewDemod(ssb.Lower)
	default:
		return quad.MakeQuadDemod(1.0)
	}
}

// Demodulate turns IQ samples into real baseband for mode. FM modes return
// one sample fewer than they are given.
func Demodulate(samples []complex64, mode Mode) []float32 {
	d := demodulatorFor(mode)
	out := make([]float32, d.PredictOutputSize(len(samples)))
	return out[:d.WorkBuffer(samples, out)]
}

type chainKey struct {
	mode        Mode
	sampleRate  int64
	bandwidthHz float64
}

// newAudioChain builds the demodulate, filter, decimate, normalize and encode
// chain for one combination of mode, rate and bandwidth.
func newAudioChain(key chainKey) (*processor.Processor, error) {
	rate := int(key.sampleRate)
	proc := processor.NewProcessor(fmt.Sprintf("%s-%d", key.mode, key.sampleRate))

	proc.AddBlock(processor.NewDSPWorkerCF("demod", fmt.Sprintf("%s Demodulator", key.mode), rate, rate, demodulatorFor(key.mode)))
	if lp := audio.NewLowPass(key.bandwidthHz, key.sampleRate); lp != nil {
		proc.AddBlock(processor.NewDSPWorkerFF("lowpass", "Audio Low Pass", rate, rate, lp))
	}
	proc.AddBlock(processor.NewDSPWorkerFF("decimate", "Decimator", rate, audio.OutputRate, audio.NewDecimator(audio.Stride(key.sampleRate))))
	proc.AddBlock(processor.NewDSPWorkerFF("normalize", "Normalizer", audio.OutputRate, audio.OutputRate, audio.Normalizer{}))
	proc.AddBlock(processor.NewDSPWorkerFB("pcm16", "PCM16 Encoder", audio.OutputRate, audio.OutputRate, audio.PCM16Encoder{}))

	if err := proc.Initialize(); err != nil {
		return nil, err
	}
	return proc, nil
}
