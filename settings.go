package quicx

import "github.com/caozhiyi/quicx/internal/frame"

// Settings are the negotiable connection parameters a Client or Server
// advertises via SETTINGS.
type Settings struct {
	QPACKMaxTableCapacity uint64
	MaxFieldSectionSize   uint64
	QPACKBlockedStreams   uint64
	EnableConnectProtocol bool
	EnablePush            bool
	MaxConcurrentStreams  uint64
}

// DefaultSettings matches quic-go/http3's conservative defaults: a
// modest dynamic table, a generous field-section cap, and push enabled
// only on servers (set by NewServer).
func DefaultSettings() Settings {
	return Settings{
		QPACKMaxTableCapacity: 4096,
		MaxFieldSectionSize:   1 << 20,
		QPACKBlockedStreams:   100,
		MaxConcurrentStreams:  100,
	}
}

func (s Settings) toFrame() *frame.SettingsFrame {
	return &frame.SettingsFrame{
		QPACKMaxTableCapacity: s.QPACKMaxTableCapacity,
		MaxFieldSectionSize:   s.MaxFieldSectionSize,
		QPACKBlockedStreams:   s.QPACKBlockedStreams,
		EnableConnectProtocol: s.EnableConnectProtocol,
		EnablePush:            s.EnablePush,
		MaxConcurrentStreams:  s.MaxConcurrentStreams,
	}
}

func settingsFromFrame(f *frame.SettingsFrame) Settings {
	return Settings{
		QPACKMaxTableCapacity: f.QPACKMaxTableCapacity,
		MaxFieldSectionSize:   f.MaxFieldSectionSize,
		QPACKBlockedStreams:   f.QPACKBlockedStreams,
		EnableConnectProtocol: f.EnableConnectProtocol,
		EnablePush:            f.EnablePush,
		MaxConcurrentStreams:  f.MaxConcurrentStreams,
	}
}
