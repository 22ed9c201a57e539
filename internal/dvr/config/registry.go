// Package config implements the DVR config reader (C7): a short-lived
// session that issues GetCfg requests and parses the reply XML into
// structured records, using the device's static config-type registry for
// human-readable names.
package config

// TypeInfo describes one entry in the device's configuration schema.
type TypeInfo struct {
	MainCmd     int
	Name        string
	Icon        string
	Description string
}

// Registry is the static mapping from main_cmd to its human-readable
// metadata, mirroring the original CONFIG_TYPES table.
var Registry = []TypeInfo{
	{101, "Network", "🌐", "IP address, ports, DHCP, DDNS, PPPoE, WiFi"},
	{103, "Network Services", "📡", "NMS, AMS, NTP, Email settings"},
	{105, "Display / OSD", "🖥️", "On-screen display, channel names, fonts"},
	{107, "Encoding", "🎬", "Compression, resolution, bitrate, framerate"},
	{109, "Record Schedule", "⏺️", "Recording schedules per channel"},
	{111, "System Time", "🕐", "Current DVR date and time"},
	{115, "Decoder / Serial", "🔌", "Serial port and decoder (PTZ) settings"},
	{117, "Alarm", "🚨", "Alarm inputs, outputs, motion detection"},
	{121, "Users", "👤", "User accounts and permissions"},
	{123, "Device Info", "ℹ️", "Model, firmware, channel count (read-only)"},
	{125, "Device Config", "⚙️", "DVR ID, timezone, DST, language, device name"},
	{127, "Storage", "💾", "Hard disk info, disk groups"},
	{129, "Device Status", "📊", "Live channel status, motion, bitrates"},
	{131, "Maintenance", "🔧", "Auto-maintenance schedule"},
	{133, "Custom Settings", "🎛️", "Work mode, feature toggles (email, CMS, NTP)"},
	{139, "Source Device", "📹", "Connected camera/source info"},
	{221, "Storage (Extended)", "💿", "Extended disk and partition info"},
}

// Lookup returns the TypeInfo for a main_cmd, or false if unknown.
func Lookup(mainCmd int) (TypeInfo, bool) {
	for _, t := range Registry {
		if t.MainCmd == mainCmd {
			return t, true
		}
	}
	return TypeInfo{}, false
}
