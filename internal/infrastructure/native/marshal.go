package native

import (
	"fmt"

	"sendctl/internal/core/domain"
)

// WireVersion is written first in every buffer.
const WireVersion uint32 = 1

// Encoding flag bits mark which optional fields carry a value.
const (
	flagMaxBitrate uint8 = 1 << iota
	flagMinBitrate
	flagMaxFramerate
	flagScaleResolutionDownBy
)

// minimum encoded sizes, used to bound element counts before allocating
const (
	minStringSize   = 5
	minCodecSize    = minStringSize + 4 + 2 + minStringSize
	minEncodingSize = minStringSize + 1 + 1 + 8 + 8 + 8 + 8
)

func EncodeCapabilities(caps domain.SenderCapabilities) []byte {
	w := &writer{}
	w.u32(WireVersion)
	w.u32(uint32(caps.Kind))
	w.u32(uint32(len(caps.Codecs)))
	for _, c := range caps.Codecs {
		w.str(c.MimeType)
		w.u32(c.ClockRate)
		w.u16(c.Channels)
		w.str(c.SDPFmtpLine)
	}
	w.u32(uint32(len(caps.HeaderExtensions)))
	for _, uri := range caps.HeaderExtensions {
		w.str(uri)
	}
	return w.bytes()
}

func DecodeCapabilities(data []byte) (domain.SenderCapabilities, error) {
	r := newReader(data)
	r.version()

	var caps domain.SenderCapabilities
	caps.Kind = domain.MediaKind(r.u32())

	n := r.count(minCodecSize)
	caps.Codecs = make([]domain.CodecCapability, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var c domain.CodecCapability
		c.MimeType = r.str()
		c.ClockRate = r.u32()
		c.Channels = r.u16()
		c.SDPFmtpLine = r.str()
		caps.Codecs = append(caps.Codecs, c)
	}

	n = r.count(minStringSize)
	for i := 0; i < n && r.err == nil; i++ {
		caps.HeaderExtensions = append(caps.HeaderExtensions, r.str())
	}

	if r.err != nil {
		return domain.SenderCapabilities{}, fmt.Errorf("decode capabilities: %w", r.err)
	}
	if !caps.Kind.Valid() {
		return domain.SenderCapabilities{}, fmt.Errorf("decode capabilities: %w: media kind %d", ErrMalformedBuffer, uint32(caps.Kind))
	}
	return caps, nil
}

func EncodeParameters(params domain.SendParameters) []byte {
	w := &writer{}
	w.u32(WireVersion)
	w.str(params.TransactionID)
	w.i32(EncodePreference(params.DegradationPreference))
	w.u32(uint32(len(params.Encodings)))
	for _, e := range params.Encodings {
		w.str(e.RID)
		if e.Active {
			w.u8(1)
		} else {
			w.u8(0)
		}

		var flags uint8
		var maxBitrate, minBitrate uint64
		var maxFramerate, scale float64
		if e.MaxBitrate != nil {
			flags |= flagMaxBitrate
			maxBitrate = *e.MaxBitrate
		}
		if e.MinBitrate != nil {
			flags |= flagMinBitrate
			minBitrate = *e.MinBitrate
		}
		if e.MaxFramerate != nil {
			flags |= flagMaxFramerate
			maxFramerate = *e.MaxFramerate
		}
		if e.ScaleResolutionDownBy != nil {
			flags |= flagScaleResolutionDownBy
			scale = *e.ScaleResolutionDownBy
		}

		w.u8(flags)
		w.u64(maxBitrate)
		w.u64(minBitrate)
		w.f64(maxFramerate)
		w.f64(scale)
	}
	return w.bytes()
}

func DecodeParameters(data []byte) (domain.SendParameters, error) {
	r := newReader(data)
	r.version()

	var params domain.SendParameters
	params.TransactionID = r.str()
	rawPreference := r.i32()

	n := r.count(minEncodingSize)
	params.Encodings = make([]domain.EncodingParameters, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var e domain.EncodingParameters
		e.RID = r.str()
		e.Active = r.u8() != 0
		flags := r.u8()
		maxBitrate := r.u64()
		minBitrate := r.u64()
		maxFramerate := r.f64()
		scale := r.f64()

		if flags&flagMaxBitrate != 0 {
			e.MaxBitrate = &maxBitrate
		}
		if flags&flagMinBitrate != 0 {
			e.MinBitrate = &minBitrate
		}
		if flags&flagMaxFramerate != 0 {
			e.MaxFramerate = &maxFramerate
		}
		if flags&flagScaleResolutionDownBy != 0 {
			e.ScaleResolutionDownBy = &scale
		}
		params.Encodings = append(params.Encodings, e)
	}

	if r.err != nil {
		return domain.SendParameters{}, fmt.Errorf("decode parameters: %w", r.err)
	}
	pref, ok := DecodePreference(rawPreference)
	if !ok {
		return domain.SendParameters{}, fmt.Errorf("decode parameters: %w: degradation preference %d",
			ErrMalformedBuffer, rawPreference)
	}
	params.DegradationPreference = pref
	return params, nil
}

// EncodeTrack writes a track descriptor. A nil track is written with handle 0.
func EncodeTrack(track *domain.Track) []byte {
	w := &writer{}
	w.u32(WireVersion)
	if track == nil {
		w.u64(0)
		w.u32(0)
		w.u32(0)
		w.u32(0)
		w.str("")
		return w.bytes()
	}
	w.u64(uint64(track.Handle))
	w.u32(uint32(track.Kind))
	w.u32(uint32(track.Width))
	w.u32(uint32(track.Height))
	w.str(track.ID)
	return w.bytes()
}

// DecodeTrack returns nil for a descriptor with handle 0.
func DecodeTrack(data []byte) (*domain.Track, error) {
	r := newReader(data)
	r.version()

	handle := r.u64()
	kind := domain.MediaKind(r.u32())
	width := r.u32()
	height := r.u32()
	id := r.str()

	if r.err != nil {
		return nil, fmt.Errorf("decode track: %w", r.err)
	}
	if handle == 0 {
		return nil, nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("decode track: %w: media kind %d", ErrMalformedBuffer, uint32(kind))
	}
	return &domain.Track{
		Handle: domain.TrackHandle(handle),
		ID:     id,
		Kind:   kind,
		Width:  int(width),
		Height: int(height),
	}, nil
}
