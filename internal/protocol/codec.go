package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
)

const fieldCount = 3

// Codec turns messages into transport payloads and back.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Classify(payload []byte) Kind
	Decode(payload []byte) (Message, error)
}

// TextCodec frames messages as ASCII `TAG(f1,f2,f3)` with unsigned base-10 fields.
// There is no length prefix, checksum or version: the transport delivers each
// payload whole.
type TextCodec struct{}

func NewTextCodec() TextCodec {
	return TextCodec{}
}

func (that TextCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", apperror.ErrMalformedMessage)
	}

	var buf bytes.Buffer
	buf.WriteString(msg.Kind().String())
	buf.WriteByte('(')

	for i, field := range msg.fields() {
		if field < 0 {
			return nil, fmt.Errorf("%w: negative field in %s", apperror.ErrMalformedMessage, msg.Kind())
		}

		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(field))
	}

	buf.WriteByte(')')

	return buf.Bytes(), nil
}

// Classify - looks only at the tag prefix.
func (that TextCodec) Classify(payload []byte) Kind {
	switch {
	case bytes.HasPrefix(payload, []byte(TagNewGame+"(")):
		return KindNewGame
	case bytes.HasPrefix(payload, []byte(TagPlay+"(")):
		return KindPlay
	default:
		return KindUnknown
	}
}

func (that TextCodec) Decode(payload []byte) (Message, error) {
	switch that.Classify(payload) {
	case KindNewGame:
		msg, err := that.DecodeNewGame(payload)
		if err != nil {
			return nil, err
		}
		return msg, nil
	case KindPlay:
		msg, err := that.DecodePlay(payload)
		if err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperror.ErrUnknownMessage, truncate(payload))
	}
}

func (that TextCodec) DecodeNewGame(payload []byte) (NewGame, error) {
	fields, err := parseFields(payload, TagNewGame)
	if err != nil {
		return NewGame{}, err
	}

	return NewGame{BoardSize: fields[0], Players: fields[1], AssignedPlayer: fields[2]}, nil
}

func (that TextCodec) DecodePlay(payload []byte) (Play, error) {
	fields, err := parseFields(payload, TagPlay)
	if err != nil {
		return Play{}, err
	}

	return Play{Player: fields[0], Row: fields[1], Col: fields[2]}, nil
}

func parseFields(payload []byte, tag string) ([]int, error) {
	text := string(payload)

	prefix := tag + "("
	if !strings.HasPrefix(text, prefix) || !strings.HasSuffix(text, ")") || len(text) < len(prefix)+1 {
		return nil, fmt.Errorf("%w: bad %s framing %q", apperror.ErrMalformedMessage, tag, truncate(payload))
	}

	parts := strings.Split(text[len(prefix):len(text)-1], ",")
	if len(parts) != fieldCount {
		return nil, fmt.Errorf("%w: %s wants %d fields, got %d", apperror.ErrMalformedMessage, tag, fieldCount, len(parts))
	}

	fields := make([]int, 0, fieldCount)
	for _, part := range parts {
		value, err := parseUnsigned(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %w", apperror.ErrMalformedMessage, tag, part, err)
		}
		fields = append(fields, value)
	}

	return fields, nil
}

// parseUnsigned accepts digits only, strconv.Atoi alone would let signs through.
func parseUnsigned(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}

	return strconv.Atoi(s)
}

func truncate(payload []byte) string {
	const limit = 64
	if len(payload) > limit {
		return string(payload[:limit]) + "..."
	}

	return string(payload)
}
