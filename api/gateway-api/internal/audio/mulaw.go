// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import "github.com/zaf/g711"

// MulawToPCM expands G.711 mu-law bytes to 16-bit little-endian linear PCM.
// One input byte becomes one 16-bit sample at the same rate.
func MulawToPCM(data []byte) []byte {
	return g711.DecodeUlaw(data)
}

// PCMToMulaw compresses 16-bit little-endian linear PCM to G.711 mu-law.
func PCMToMulaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}
