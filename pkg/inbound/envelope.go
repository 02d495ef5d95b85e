package inbound

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"wagate/pkg/whatsapp"
)

// wwebjs webhook dataType values carrying a message or vote.
var envelopeEvents = map[string]string{
	"message":        EventMessage,
	"message_create": EventMessage,
	"message_ack":    EventAck,
	"vote_update":    EventPollResponse,
}

// IsEnvelope reports whether raw is a wwebjs webhook envelope
// ({sessionId, dataType, data}) rather than a canonical payload.
func IsEnvelope(raw []byte) bool {
	doc := gjson.ParseBytes(raw)
	return doc.Get("dataType").Type == gjson.String && doc.Get("data").IsObject() && !doc.Get("event").Exists()
}

// ReduceEnvelope rewrites a wwebjs envelope into the canonical payload. Only the
// fields the normalizer reads are carried over.
func ReduceEnvelope(raw []byte) ([]byte, error) {
	doc := gjson.ParseBytes(raw)
	dataType := doc.Get("dataType").String()

	event, ok := envelopeEvents[dataType]
	if !ok {
		return nil, malformed("unrecognized wwebjs event %q", dataType)
	}

	out := &builder{doc: []byte(`{}`)}
	out.set("event", event)
	out.set("dataType", event)
	out.set("session", doc.Get("sessionId").String())

	if event == EventPollResponse {
		reduceVote(out, doc.Get("data.vote"))
	} else {
		reduceMessage(out, doc.Get("data.message"))
		if ack := doc.Get("data.ack"); ack.Type == gjson.Number {
			out.set("ack", ack.Int())
		}
	}

	if out.err != nil {
		return nil, malformed("reduce wwebjs envelope: %v", out.err)
	}

	return out.doc, nil
}

func reduceMessage(out *builder, message gjson.Result) {
	if !message.IsObject() {
		out.fail("message is missing")
		return
	}
	data := message.Get("_data")

	out.set("id", first(message.Get("id._serialized"), data.Get("id._serialized"), message.Get("id")).String())
	out.set("type", first(message.Get("type"), data.Get("type")).String())
	out.setRaw("body", first(message.Get("body"), data.Get("body")))
	out.set("from", first(message.Get("from"), data.Get("from")).String())
	out.set("to", first(message.Get("to"), data.Get("to")).String())
	out.set("fromMe", first(message.Get("fromMe"), message.Get("id.fromMe"), data.Get("id.fromMe")).Bool())
	out.set("notifyName", first(data.Get("notifyName"), message.Get("notifyName")).String())
	out.set("isForwarded", first(message.Get("isForwarded"), data.Get("isForwarded")).Bool())

	from := first(message.Get("from"), data.Get("from")).String()
	out.set("isGroupMsg", strings.HasSuffix(from, whatsapp.GroupSuffix))

	if author := first(message.Get("author"), data.Get("author")); author.String() != "" {
		out.set("author", author.String())
	}
	if ts := first(message.Get("timestamp"), data.Get("t")); ts.Type == gjson.Number {
		out.set("t", ts.Int())
	}
	if ack := first(message.Get("ack"), data.Get("ack")); ack.Type == gjson.Number {
		out.set("ack", ack.Int())
	}

	for _, key := range []string{"mimetype", "filename", "caption"} {
		if value := data.Get(key); value.Type == gjson.String {
			out.set(key, value.Str)
		}
	}
	if location := message.Get("location"); location.IsObject() {
		out.setRaw("location", location)
	}
	if quoted := data.Get("quotedMsg"); quoted.IsObject() {
		out.setRaw("quotedMsg", quoted)
	}
	if stanza := data.Get("quotedStanzaID"); stanza.Type == gjson.String {
		out.set("quotedMsgId", stanza.Str)
	}
}

func reduceVote(out *builder, vote gjson.Result) {
	if !vote.IsObject() {
		out.fail("vote is missing")
		return
	}

	parent := first(vote.Get("parentMessage.id._serialized"), vote.Get("parentMsgKey._serialized")).String()
	out.set("msgId._serialized", parent)
	out.set("chatId", vote.Get("voter").String())
	out.setRaw("selectedOptions", vote.Get("selectedOptions"))
	if ts := vote.Get("interractedAtTs"); ts.Type == gjson.Number {
		out.set("t", ts.Int())
	}
}

// builder accumulates sjson edits and keeps the first error.
type builder struct {
	doc []byte
	err error
}

func (b *builder) set(path string, value any) {
	if b.err != nil {
		return
	}
	b.doc, b.err = sjson.SetBytes(b.doc, path, value)
}

func (b *builder) setRaw(path string, value gjson.Result) {
	if b.err != nil || !value.Exists() {
		return
	}
	b.doc, b.err = sjson.SetRawBytes(b.doc, path, []byte(value.Raw))
}

func (b *builder) fail(reason string) {
	if b.err == nil {
		b.err = whatsapp.NewError(whatsapp.ErrorMalformedPayload, reason)
	}
}

func first(values ...gjson.Result) gjson.Result {
	for _, value := range values {
		if value.Exists() && value.Type != gjson.Null {
			return value
		}
	}

	return gjson.Result{}
}
