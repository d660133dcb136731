package platform

import "github.com/ZacxDev/clipnship/pkg/types"

// DefaultProfile is the only output every render uses unless configured.
const DefaultProfile = "webm-vp9"

type WebMVP9 struct{}

func init() {
	Register(&WebMVP9{})
}

func (p *WebMVP9) GetName() string {
	return DefaultProfile
}

func (p *WebMVP9) GetMaxDimensions() (width, height int) {
	return 4096, 4096
}

func (p *WebMVP9) GetVideoCodec() string {
	return "libvpx-vp9"
}

func (p *WebMVP9) GetAudioCodec() string {
	return "libopus"
}

func (p *WebMVP9) GetVideoBitrate() string {
	return "4M"
}

func (p *WebMVP9) GetAudioBitrate() string {
	return "128k"
}

func (p *WebMVP9) GetOutputFormat() string {
	return "webm"
}

func (p *WebMVP9) GetMimeType() string {
	return types.MimeTypeWebMVP9
}
