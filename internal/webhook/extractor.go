package webhook

import (
	"strconv"
	"strings"

	"atende_backend/platform/phone"
	"atende_backend/platform/sanitize"
)

// InboundEvent is the normalized view of one gateway delivery. Every field is
// optional; unknown payload shapes produce an empty event rather than an error.
type InboundEvent struct {
	EventID      string
	EventType    string
	InstanceName string
	RawPhone     string
	Phone        string
	Candidates   []string
	Text         string
	PushName     string
	HasMedia     bool
	MediaType    string
	FromMe       bool
	Raw          map[string]any
}

const defaultEventType = "message"

// Candidate paths per field, across Evolution API, Z-API and generic shapes.
// Each path is dot-separated; numeric segments index arrays.
var (
	eventIDPaths = []string{"data.key.id", "data.id", "messageId", "id", "data.messages.0.key.id"}

	eventTypePaths = []string{"event", "type", "eventType"}

	instancePaths = []string{"instance", "instanceName", "data.instance", "instanceId", "data.instanceName"}

	phonePaths = []string{
		"data.key.remoteJid", "data.messages.0.key.remoteJid", "data.remoteJid",
		"phone", "data.phone", "from", "data.from", "sender.phone", "remoteJid",
	}

	fromMePaths = []string{"data.key.fromMe", "data.messages.0.key.fromMe", "fromMe", "data.fromMe"}

	pushNamePaths = []string{"data.pushName", "senderName", "pushName", "data.senderName", "sender.name"}

	textPaths = []string{
		"data.message.conversation",
		"data.message.extendedTextMessage.text",
		"data.message.imageMessage.caption",
		"data.message.videoMessage.caption",
		"data.message.documentMessage.caption",
		"data.message.buttonsResponseMessage.selectedDisplayText",
		"data.message.listResponseMessage.title",
		"data.message.templateButtonReplyMessage.selectedDisplayText",
		"data.messages.0.message.conversation",
		"text.message",
		"message.text",
		"data.body",
		"body",
		"text",
		"message",
	}

	mediaKeys = []string{"imageMessage", "audioMessage", "videoMessage", "documentMessage", "stickerMessage"}

	flatMediaKeys = []string{"image", "audio", "video", "document", "sticker"}
)

// Extract builds an InboundEvent from a decoded JSON payload of any shape.
func Extract(payload any) InboundEvent {
	root, _ := payload.(map[string]any)
	ev := InboundEvent{Raw: root}
	if root == nil {
		ev.EventType = defaultEventType
		return ev
	}

	ev.EventID = firstString(root, eventIDPaths)
	ev.EventType = firstString(root, eventTypePaths)
	if ev.EventType == "" {
		ev.EventType = defaultEventType
	}
	ev.InstanceName = firstString(root, instancePaths)
	ev.RawPhone = firstString(root, phonePaths)
	ev.Phone = phone.Normalize(ev.RawPhone)
	if ev.Phone != "" {
		ev.Candidates = phone.Candidates(ev.RawPhone)
	}
	ev.FromMe = firstBool(root, fromMePaths)
	ev.PushName = strings.TrimSpace(firstString(root, pushNamePaths))
	ev.Text = sanitize.Message(firstString(root, textPaths))
	ev.MediaType = detectMedia(root)
	ev.HasMedia = ev.MediaType != ""

	return ev
}

func detectMedia(root map[string]any) string {
	if msgType := lookupString(root, "data.messageType"); msgType != "" {
		for _, key := range mediaKeys {
			if msgType == key {
				return strings.TrimSuffix(key, "Message")
			}
		}
	}
	if msg := lookupMap(root, "data.message"); msg != nil {
		for _, key := range mediaKeys {
			if _, ok := msg[key].(map[string]any); ok {
				return strings.TrimSuffix(key, "Message")
			}
		}
	}
	for _, key := range flatMediaKeys {
		if _, ok := root[key].(map[string]any); ok {
			return key
		}
	}
	return ""
}

// lookup walks a dot-separated path. It never panics: a missing key, a
// type mismatch or an out-of-range index yields nil.
func lookup(v any, path string) any {
	current := v
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}

func lookupString(v any, path string) string {
	switch value := lookup(v, path).(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case interface{ String() string }:
		return value.String()
	default:
		return ""
	}
}

func lookupBool(v any, path string) (bool, bool) {
	switch value := lookup(v, path).(type) {
	case bool:
		return value, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		return b, err == nil
	default:
		return false, false
	}
}

func lookupMap(v any, path string) map[string]any {
	m, _ := lookup(v, path).(map[string]any)
	return m
}

func firstString(v any, paths []string) string {
	for _, p := range paths {
		if s := lookupString(v, p); s != "" {
			return s
		}
	}
	return ""
}

func firstBool(v any, paths []string) bool {
	for _, p := range paths {
		if b, ok := lookupBool(v, p); ok {
			return b
		}
	}
	return false
}
