// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vonage_dialer

// converter is a pass-through. The NCCO endpoint is negotiated as
// audio/l16;rate=16000, which is already the canonical format, so neither
// direction touches the samples.
type converter struct{}

func newConverter() *converter {
	return &converter{}
}

func (c *converter) DialerToPCM(payload []byte) ([]byte, error) {
	return payload, nil
}

func (c *converter) PCMToDialer(pcm []byte) ([]byte, error) {
	return pcm, nil
}
