// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import "encoding/binary"

// Resampler is a stateful linear-rate converter for 16-bit mono PCM.
//
// Media arrives in ~20ms frames; the fractional phase and the trailing
// sample must survive across frames or every frame boundary produces an
// audible discontinuity. One Resampler therefore serves exactly one stream
// in one direction: allocate it at stream start, discard it at stream end,
// never share it between directions.
type Resampler struct {
	inRate  int
	outRate int

	// phase accumulator and the interpolation window, carried across calls
	d    int
	prev int16
	cur  int16
}

// NewResampler returns a converter from inRate to outRate hertz.
func NewResampler(inRate, outRate int) *Resampler {
	g := gcd(inRate, outRate)
	in := inRate / g
	out := outRate / g
	return &Resampler{
		inRate:  in,
		outRate: out,
		d:       -in,
	}
}

// Convert resamples one frame and advances the carried state. The output
// length follows len(pcm)*outRate/inRate to within one sample once the
// stream is flowing.
func (r *Resampler) Convert(pcm []byte) []byte {
	if r.inRate == r.outRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	n := len(pcm) / 2
	out := make([]byte, 0, (n*r.outRate/r.inRate+2)*2)
	idx := 0
	for {
		for r.d < 0 {
			if idx >= n {
				return out
			}
			r.prev = r.cur
			r.cur = int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
			idx++
			r.d += r.outRate
		}
		for r.d >= 0 {
			sample := (int(r.prev)*r.d + int(r.cur)*(r.outRate-r.d)) / r.outRate
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(sample)))
			r.d -= r.inRate
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
