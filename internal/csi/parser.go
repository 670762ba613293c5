package csi

import (
	"log/slog"
	"strconv"
	"strings"
)

// DefaultPayloadLen is the number of raw values (64 subcarriers of I/Q) the
// ESP32 CSI firmware emits per frame. Firmware with a different subcarrier
// count needs a different value.
const DefaultPayloadLen = 128

// Vocabulary describes the line shapes the device prints.
type Vocabulary struct {
	PromptPrefix       string   `yaml:"prompt_prefix"`        // Echoed CLI prompt, ignored
	TimestampKey       string   `yaml:"timestamp_key"`        // "<key>: <uint>"
	SignalStrengthKeys []string `yaml:"signal_strength_keys"` // "<key>: <int>"
	IncomingMarker     string   `yaml:"incoming_marker"`      // Announces the next array line as payload
}

// DefaultVocabulary returns the line shapes printed by esp-csi-cli firmware.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		PromptPrefix:       ">",
		TimestampKey:       "timestamp",
		SignalStrengthKeys: []string{"signal-strength", "rssi"},
		IncomingMarker:     "raw data",
	}
}

// Reason identifies why the parser discarded input.
type Reason string

const (
	ReasonBadToken   Reason = "bad_token"  // Non-numeric token inside a payload array
	ReasonLength     Reason = "length"     // Payload value count differs from the expected length
	ReasonIncomplete Reason = "incomplete" // Payload arrived without timestamp or signal strength
)

type lineKind int

const (
	lineIgnored lineKind = iota
	lineSignalStrength
	lineTimestamp
	lineIncoming
	lineArray
)

// line is the classified form of one input line.
type line struct {
	kind      lineKind
	timestamp uint64
	rssi      int32
	body      string // Contents between the brackets for lineArray
}

// Parser is the per-session state machine turning CLI lines into frames.
// It is not safe for concurrent use.
type Parser struct {
	payloadLen int
	vocab      Vocabulary
	logger     *slog.Logger
	onReject   func(Reason)

	pendingTS   *uint64
	pendingRSSI *int32
	armed       bool
}

// ParserOption customises a Parser.
type ParserOption func(*Parser)

// WithVocabulary overrides the recognised line shapes.
func WithVocabulary(v Vocabulary) ParserOption {
	return func(p *Parser) { p.vocab = v }
}

// WithLogger sets the logger used for line-level warnings.
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// WithRejectHook registers a callback invoked for every discarded token or frame.
func WithRejectHook(fn func(Reason)) ParserOption {
	return func(p *Parser) { p.onReject = fn }
}

// NewParser creates a parser expecting payloadLen values per frame.
func NewParser(payloadLen int, opts ...ParserOption) *Parser {
	p := &Parser{
		payloadLen: payloadLen,
		vocab:      DefaultVocabulary(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.vocab = p.vocab.normalized()
	return p
}

// normalized lowercases the keys and marker; lines are matched case-insensitively.
func (v Vocabulary) normalized() Vocabulary {
	keys := make([]string, len(v.SignalStrengthKeys))
	for i, k := range v.SignalStrengthKeys {
		keys[i] = strings.ToLower(strings.TrimSpace(k))
	}
	v.TimestampKey = strings.ToLower(strings.TrimSpace(v.TimestampKey))
	v.SignalStrengthKeys = keys
	v.IncomingMarker = strings.ToLower(v.IncomingMarker)
	return v
}

// PayloadLen returns the expected raw value count per frame.
func (p *Parser) PayloadLen() int {
	return p.payloadLen
}

// FeedLine consumes one line of device output and returns a frame when the
// line completes one.
func (p *Parser) FeedLine(raw string) *Frame {
	l := p.classify(raw)

	switch l.kind {
	case lineSignalStrength:
		rssi := l.rssi
		p.pendingRSSI = &rssi
	case lineTimestamp:
		ts := l.timestamp
		p.pendingTS = &ts
	case lineIncoming:
		p.armed = true
	case lineArray:
		if !p.armed {
			return nil
		}
		p.armed = false
		return p.consumePayload(l.body)
	}
	return nil
}

func (p *Parser) consumePayload(body string) *Frame {
	defer p.reset()

	values := make([]int32, 0, p.payloadLen)
	for _, tok := range strings.Split(body, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			p.logger.Debug("skipping non-numeric payload token", slog.String("token", tok))
			p.reject(ReasonBadToken)
			continue
		}
		values = append(values, int32(v))
	}

	if len(values) != p.payloadLen {
		p.logger.Debug("discarding payload with unexpected length",
			slog.Int("got", len(values)), slog.Int("want", p.payloadLen))
		p.reject(ReasonLength)
		return nil
	}

	if p.pendingTS == nil || p.pendingRSSI == nil {
		p.reject(ReasonIncomplete)
		return nil
	}

	frame, err := NewFrame(*p.pendingTS, *p.pendingRSSI, values)
	if err != nil {
		p.reject(ReasonLength)
		return nil
	}
	return frame
}

func (p *Parser) reset() {
	p.pendingTS = nil
	p.pendingRSSI = nil
	p.armed = false
}

func (p *Parser) reject(r Reason) {
	if p.onReject != nil {
		p.onReject(r)
	}
}

// classify maps a raw line onto one of the known shapes.
func (p *Parser) classify(raw string) line {
	s := strings.TrimSpace(raw)
	if s == "" {
		return line{kind: lineIgnored}
	}
	if p.vocab.PromptPrefix != "" && strings.HasPrefix(s, p.vocab.PromptPrefix) {
		return line{kind: lineIgnored}
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return line{kind: lineArray, body: s[1 : len(s)-1]}
	}

	if key, value, ok := strings.Cut(s, ":"); ok {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if key == p.vocab.TimestampKey {
			if ts, err := strconv.ParseUint(value, 10, 64); err == nil {
				return line{kind: lineTimestamp, timestamp: ts}
			}
			return line{kind: lineIgnored}
		}
		for _, k := range p.vocab.SignalStrengthKeys {
			if key == k {
				if v, err := strconv.ParseInt(value, 10, 32); err == nil {
					return line{kind: lineSignalStrength, rssi: int32(v)}
				}
				return line{kind: lineIgnored}
			}
		}
	}

	if p.vocab.IncomingMarker != "" && strings.Contains(strings.ToLower(s), p.vocab.IncomingMarker) {
		return line{kind: lineIncoming}
	}
	return line{kind: lineIgnored}
}
