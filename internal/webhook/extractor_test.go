package webhook

import "testing"

func TestExtractEvolutionPayload(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"instance": "Clinica",
		"data": {
			"key": {"id": "3EB0A1", "remoteJid": "5511999998888@s.whatsapp.net", "fromMe": false},
			"pushName": " Joao ",
			"message": {"conversation": "Quero  agendar <b>amanha</b>"}
		}
	}`)

	ev := Extract(DecodePayload(body))

	if ev.EventID != "3EB0A1" {
		t.Fatalf("expected event id 3EB0A1, got %q", ev.EventID)
	}
	if ev.EventType != "messages.upsert" {
		t.Fatalf("unexpected event type %q", ev.EventType)
	}
	if ev.InstanceName != "Clinica" {
		t.Fatalf("unexpected instance %q", ev.InstanceName)
	}
	if ev.Phone != "5511999998888" {
		t.Fatalf("unexpected phone %q", ev.Phone)
	}
	if len(ev.Candidates) == 0 {
		t.Fatal("expected phone candidates")
	}
	if ev.PushName != "Joao" {
		t.Fatalf("unexpected push name %q", ev.PushName)
	}
	if ev.Text != "Quero agendar amanha" {
		t.Fatalf("unexpected text %q", ev.Text)
	}
	if ev.FromMe || ev.HasMedia {
		t.Fatalf("unexpected flags fromMe=%v hasMedia=%v", ev.FromMe, ev.HasMedia)
	}
}

func TestExtractZAPIPayload(t *testing.T) {
	body := []byte(`{
		"type": "ReceivedCallback",
		"instanceId": "inst-1",
		"messageId": "Z1",
		"phone": "11999998888",
		"fromMe": "false",
		"senderName": "Maria",
		"text": {"message": "segunda via do boleto"}
	}`)

	ev := Extract(DecodePayload(body))

	if ev.EventID != "Z1" || ev.InstanceName != "inst-1" {
		t.Fatalf("unexpected identifiers %+v", ev)
	}
	if ev.Phone != "5511999998888" {
		t.Fatalf("expected country prefix to be added, got %q", ev.Phone)
	}
	if ev.Text != "segunda via do boleto" {
		t.Fatalf("unexpected text %q", ev.Text)
	}
	if ev.PushName != "Maria" {
		t.Fatalf("unexpected push name %q", ev.PushName)
	}
}

func TestExtractMediaWithCaption(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "5511999998888@s.whatsapp.net"},
			"messageType": "imageMessage",
			"message": {"imageMessage": {"caption": "comprovante"}}
		}
	}`)

	ev := Extract(DecodePayload(body))

	if !ev.HasMedia || ev.MediaType != "image" {
		t.Fatalf("expected image media, got hasMedia=%v type=%q", ev.HasMedia, ev.MediaType)
	}
	if ev.Text != "comprovante" {
		t.Fatalf("expected caption as text, got %q", ev.Text)
	}
}

func TestExtractRejectsGroupSender(t *testing.T) {
	body := []byte(`{"event":"messages.upsert","data":{"key":{"remoteJid":"120363025@g.us"},"message":{"conversation":"oi"}}}`)

	ev := Extract(DecodePayload(body))

	if ev.Phone != "" || len(ev.Candidates) != 0 {
		t.Fatalf("expected group sender to be rejected, got %q", ev.Phone)
	}
}

func TestExtractUnknownShapesNeverPanic(t *testing.T) {
	inputs := []any{
		nil,
		"text",
		[]any{1, 2, 3},
		map[string]any{"data": "not an object"},
		map[string]any{"data": map[string]any{"messages": []any{}}},
		map[string]any{"data": map[string]any{"key": []any{"x"}}},
		DecodePayload([]byte(`not json`)),
	}

	for _, in := range inputs {
		ev := Extract(in)
		if ev.EventType != defaultEventType {
			t.Fatalf("expected default event type for %#v, got %q", in, ev.EventType)
		}
		if ev.Phone != "" || ev.Text != "" || ev.EventID != "" {
			t.Fatalf("expected empty event for %#v, got %+v", in, ev)
		}
	}
}

func TestExtractNumericIdentifiers(t *testing.T) {
	body := []byte(`{"id": 987654321012, "phone": 5511999998888, "text": "oi"}`)

	ev := Extract(DecodePayload(body))

	if ev.EventID != "987654321012" {
		t.Fatalf("expected numeric id to be kept verbatim, got %q", ev.EventID)
	}
	if ev.Phone != "5511999998888" {
		t.Fatalf("unexpected phone %q", ev.Phone)
	}
}
