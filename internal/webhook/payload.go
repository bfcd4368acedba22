package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/radiomesh/meshbridge/internal/mesh"
)

// maxContentLength is Discord's limit on the content field.
const maxContentLength = 2000

// Embed colors, one per telemetry event kind.
const (
	colorPosition  = 0x42f554
	colorTelemetry = 0xf5a742
	colorNodeInfo  = 0x4287f5
)

// Message is the outbound webhook request body.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is a single name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// TextMessage builds the request body for a relayed text message.
// The content is "sender: text", with mass mentions neutralized and the
// whole string truncated to Discord's content limit.
func TextMessage(sender, text string) ([]byte, error) {
	content := sanitize(sender + ": " + text)
	if runes := []rune(content); len(runes) > maxContentLength {
		content = string(runes[:maxContentLength])
	}
	return json.Marshal(Message{Content: content})
}

// TelemetryMessage builds an embed request body for a position, telemetry
// or nodeinfo event. The display parameter is the resolved node name shown
// in the From field. Returns mesh.ErrUnknownKind for kinds that have no
// embed form.
func TelemetryMessage(ev *mesh.Event, display string) ([]byte, error) {
	var embed Embed
	switch ev.Kind {
	case mesh.KindPosition:
		embed = positionEmbed(ev, display)
	case mesh.KindTelemetry:
		embed = telemetryEmbed(ev, display)
	case mesh.KindNodeInfo:
		embed = nodeInfoEmbed(ev, display)
	default:
		return nil, mesh.ErrUnknownKind
	}
	if !ev.Timestamp.IsZero() {
		embed.Timestamp = ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	}
	return json.Marshal(Message{Embeds: []Embed{embed}})
}

func positionEmbed(ev *mesh.Event, display string) Embed {
	fields := []EmbedField{
		{Name: "From", Value: sanitize(display), Inline: true},
	}
	if p := ev.Position; p != nil {
		fields = append(fields,
			EmbedField{
				Name:   "Location",
				Value:  fmt.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude),
				Inline: true,
			},
			EmbedField{
				Name:  "Map",
				Value: fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.5f&mlon=%.5f", p.Latitude, p.Longitude),
			},
		)
		if p.Altitude != nil {
			fields = append(fields, EmbedField{
				Name:   "Altitude",
				Value:  fmt.Sprintf("%d m", *p.Altitude),
				Inline: true,
			})
		}
		if p.Satellites != nil {
			fields = append(fields, EmbedField{
				Name:   "Satellites",
				Value:  fmt.Sprintf("%d", *p.Satellites),
				Inline: true,
			})
		}
	}
	if sig := signalField(ev); sig != nil {
		fields = append(fields, *sig)
	}
	return Embed{Title: "📍 Position Update", Color: colorPosition, Fields: fields}
}

func telemetryEmbed(ev *mesh.Event, display string) Embed {
	fields := []EmbedField{
		{Name: "From", Value: sanitize(display), Inline: true},
	}
	if m := ev.Metrics; m != nil {
		if m.BatteryLevel != nil {
			fields = append(fields, EmbedField{
				Name:   "Battery",
				Value:  fmt.Sprintf("%.0f%%", *m.BatteryLevel),
				Inline: true,
			})
		}
		if m.Voltage != nil {
			fields = append(fields, EmbedField{
				Name:   "Voltage",
				Value:  fmt.Sprintf("%.2f V", *m.Voltage),
				Inline: true,
			})
		}
		if m.ChannelUtilization != nil {
			fields = append(fields, EmbedField{
				Name:   "Channel Util",
				Value:  fmt.Sprintf("%.1f%%", *m.ChannelUtilization),
				Inline: true,
			})
		}
		if m.AirUtilTx != nil {
			fields = append(fields, EmbedField{
				Name:   "Air Util TX",
				Value:  fmt.Sprintf("%.1f%%", *m.AirUtilTx),
				Inline: true,
			})
		}
	}
	if sig := signalField(ev); sig != nil {
		fields = append(fields, *sig)
	}
	return Embed{Title: "📊 Telemetry", Color: colorTelemetry, Fields: fields}
}

func nodeInfoEmbed(ev *mesh.Event, display string) Embed {
	fields := []EmbedField{
		{Name: "From", Value: sanitize(display), Inline: true},
		{Name: "ID", Value: ev.SenderID, Inline: true},
	}
	if info := ev.NodeInfo; info != nil {
		if info.LongName != "" {
			fields = append(fields, EmbedField{
				Name:   "Long Name",
				Value:  sanitize(info.LongName),
				Inline: true,
			})
		}
		if info.ShortName != "" {
			fields = append(fields, EmbedField{
				Name:   "Short Name",
				Value:  sanitize(info.ShortName),
				Inline: true,
			})
		}
		if info.Hardware != "" {
			fields = append(fields, EmbedField{
				Name:   "Hardware",
				Value:  sanitize(info.Hardware),
				Inline: true,
			})
		}
		if info.Firmware != "" {
			fields = append(fields, EmbedField{
				Name:   "Firmware",
				Value:  sanitize(info.Firmware),
				Inline: true,
			})
		}
	}
	if sig := signalField(ev); sig != nil {
		fields = append(fields, *sig)
	}
	return Embed{Title: "ℹ️ Node Info", Color: colorNodeInfo, Fields: fields}
}

func signalField(ev *mesh.Event) *EmbedField {
	if ev.RSSI == nil && ev.SNR == nil {
		return nil
	}
	parts := make([]string, 0, 2)
	if ev.RSSI != nil {
		parts = append(parts, fmt.Sprintf("RSSI %d dBm", *ev.RSSI))
	}
	if ev.SNR != nil {
		parts = append(parts, fmt.Sprintf("SNR %.2f dB", *ev.SNR))
	}
	return &EmbedField{Name: "Signal", Value: strings.Join(parts, " / "), Inline: true}
}

// sanitize neutralizes Discord mass mentions by inserting a zero-width
// space after the @. Mesh text is untrusted input.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "@everyone", "@\u200beveryone")
	s = strings.ReplaceAll(s, "@here", "@\u200bhere")
	return s
}
