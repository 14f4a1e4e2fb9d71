// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bytewords implements the Bytewords text encoding used by Uniform
// Resources. Every byte maps to one of 256 four letter words, and an encoded
// payload always carries a trailing CRC32 checksum.
package bytewords

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// Style selects how the words of an encoding are written out.
type Style uint8

const (
	// Standard writes full words separated by spaces.
	Standard Style = iota

	// URI writes full words separated by dashes.
	URI

	// Minimal writes only the first and last letter of each word with no
	// separator. This is the style used inside UR strings.
	Minimal
)

// String returns the name of the style.
func (s Style) String() string {
	switch s {
	case Standard:
		return "standard"
	case URI:
		return "uri"
	case Minimal:
		return "minimal"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

const (
	// checksumSize is the length of the CRC32 checksum appended to every
	// encoded payload.
	checksumSize = 4

	// wordSize is the length of a full byteword.
	wordSize = 4

	// minimalWordSize is the length of a byteword in the minimal style.
	minimalWordSize = 2
)

var (
	// ErrInvalidWord is returned when the input contains a word that is
	// not part of the word list.
	ErrInvalidWord = errors.New("invalid byteword")

	// ErrInvalidLength is returned when the input cannot be split into
	// whole words or is too short to hold the checksum.
	ErrInvalidLength = errors.New("invalid bytewords length")

	// ErrInvalidChecksum is returned when the decoded checksum does not
	// match the payload.
	ErrInvalidChecksum = errors.New("invalid bytewords checksum")

	// ErrUnknownStyle is returned for a Style value outside the defined
	// set.
	ErrUnknownStyle = errors.New("unknown bytewords style")
)

// words is the Bytewords table. The first and last letters of every word are
// unique across the table, which is what makes the minimal style reversible.
var words = [256]string{
	"able", "acid", "also", "apex", "aqua", "arch", "atom", "aunt",
	"away", "axis", "back", "bald", "barn", "belt", "beta", "bias",
	"blue", "body", "brag", "brew", "bulb", "buzz", "calm", "cash",
	"cats", "chef", "city", "claw", "code", "cola", "cook", "cost",
	"crux", "curl", "cusp", "cyan", "dark", "data", "days", "deli",
	"dice", "diet", "door", "down", "draw", "drop", "drum", "dull",
	"duty", "each", "easy", "echo", "edge", "epic", "even", "exam",
	"exit", "eyes", "fact", "fair", "fern", "figs", "film", "fish",
	"fizz", "flap", "flew", "flux", "foxy", "free", "frog", "fuel",
	"fund", "gala", "game", "gear", "gems", "gift", "girl", "glow",
	"good", "gray", "grim", "guru", "gush", "gyro", "half", "hang",
	"hard", "hawk", "heat", "help", "high", "hill", "holy", "hope",
	"horn", "huts", "iced", "idea", "idle", "inch", "inky", "into",
	"iris", "iron", "item", "jade", "jazz", "join", "jolt", "jowl",
	"judo", "jugs", "jump", "junk", "jury", "keep", "keno", "kept",
	"keys", "kick", "kiln", "king", "kite", "kiwi", "knob", "lamb",
	"lava", "lazy", "leaf", "legs", "liar", "limp", "lion", "list",
	"logo", "loud", "love", "luau", "luck", "lung", "main", "many",
	"math", "maze", "memo", "menu", "meow", "mild", "mint", "miss",
	"monk", "nail", "navy", "need", "news", "next", "noon", "note",
	"numb", "obey", "oboe", "omit", "onyx", "open", "oval", "owls",
	"paid", "part", "peck", "play", "plus", "poem", "pool", "pose",
	"puff", "puma", "purr", "quad", "quiz", "race", "ramp", "real",
	"redo", "rich", "road", "rock", "roof", "ruby", "ruin", "runs",
	"rust", "safe", "saga", "scar", "sets", "silk", "skew", "slot",
	"soap", "solo", "song", "stub", "surf", "swan", "taco", "task",
	"taxi", "tent", "tied", "time", "tiny", "toil", "tomb", "toys",
	"trip", "tuna", "twin", "ugly", "undo", "unit", "urge", "user",
	"vast", "very", "veto", "vial", "vibe", "view", "visa", "void",
	"vows", "wall", "wand", "warm", "wasp", "wave", "waxy", "webs",
	"what", "when", "whiz", "wolf", "work", "yank", "yawn", "yell",
	"yoga", "yurt", "zaps", "zero", "zest", "zinc", "zone", "zoom",
}

var (
	// fullIndex maps a full word to its byte value.
	fullIndex = make(map[string]byte, len(words))

	// minimalIndex maps the first and last letter of a word to its byte
	// value.
	minimalIndex = make(map[string]byte, len(words))
)

func init() {
	for i, w := range words {
		fullIndex[w] = byte(i)
		minimalIndex[minimalWord(w)] = byte(i)
	}
}

// minimalWord returns the two letter minimal form of a full word.
func minimalWord(w string) string {
	return w[:1] + w[wordSize-1:]
}

// appendChecksum returns a copy of data with its big endian CRC32 appended.
func appendChecksum(data []byte) []byte {
	out := make([]byte, len(data), len(data)+checksumSize)
	copy(out, data)

	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(data))
}

// Encode encodes data in the given style, appending the CRC32 checksum of
// the payload before the words are produced.
func Encode(data []byte, style Style) (string, error) {
	body := appendChecksum(data)

	var (
		sep  string
		conv func(string) string
	)
	switch style {
	case Standard:
		sep = " "

	case URI:
		sep = "-"

	case Minimal:
		conv = minimalWord

	default:
		return "", fmt.Errorf("%w: %v", ErrUnknownStyle, style)
	}

	var sb strings.Builder
	for i, b := range body {
		if i > 0 {
			sb.WriteString(sep)
		}

		w := words[b]
		if conv != nil {
			w = conv(w)
		}
		sb.WriteString(w)
	}

	return sb.String(), nil
}

// EncodeMinimal is a shortcut for Encode with the Minimal style. The minimal
// style cannot fail, so no error is returned.
func EncodeMinimal(data []byte) string {
	body := appendChecksum(data)

	var sb strings.Builder
	sb.Grow(len(body) * minimalWordSize)
	for _, b := range body {
		sb.WriteString(minimalWord(words[b]))
	}

	return sb.String()
}

// Decode decodes text written in the given style, verifies the trailing
// checksum and returns the payload without it. Decoding is case-insensitive.
func Decode(text string, style Style) ([]byte, error) {
	text = strings.ToLower(strings.TrimSpace(text))

	var body []byte
	switch style {
	case Standard:
		b, err := decodeWords(strings.Fields(text))
		if err != nil {
			return nil, err
		}
		body = b

	case URI:
		b, err := decodeWords(strings.Split(text, "-"))
		if err != nil {
			return nil, err
		}
		body = b

	case Minimal:
		b, err := decodeMinimal(text)
		if err != nil {
			return nil, err
		}
		body = b

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStyle, style)
	}

	return stripChecksum(body)
}

// DecodeMinimal is a shortcut for Decode with the Minimal style.
func DecodeMinimal(text string) ([]byte, error) {
	return Decode(text, Minimal)
}

// decodeWords maps a list of full words back to bytes.
func decodeWords(list []string) ([]byte, error) {
	out := make([]byte, 0, len(list))
	for _, w := range list {
		b, ok := fullIndex[w]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWord, w)
		}

		out = append(out, b)
	}

	return out, nil
}

// decodeMinimal maps a string of two letter minimal words back to bytes.
func decodeMinimal(text string) ([]byte, error) {
	if len(text)%minimalWordSize != 0 {
		return nil, fmt.Errorf("%w: odd number of letters (%d)",
			ErrInvalidLength, len(text))
	}

	out := make([]byte, 0, len(text)/minimalWordSize)
	for i := 0; i < len(text); i += minimalWordSize {
		w := text[i : i+minimalWordSize]

		b, ok := minimalIndex[w]
		if !ok {
			return nil, fmt.Errorf("%w: %q at offset %d",
				ErrInvalidWord, w, i)
		}

		out = append(out, b)
	}

	return out, nil
}

// stripChecksum verifies and removes the trailing checksum of body.
func stripChecksum(body []byte) ([]byte, error) {
	if len(body) < checksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength,
			len(body))
	}

	split := len(body) - checksumSize
	payload, sum := body[:split], body[split:]

	want := crc32.ChecksumIEEE(payload)
	got := binary.BigEndian.Uint32(sum)
	if want != got {
		return nil, fmt.Errorf("%w: got %08x, want %08x",
			ErrInvalidChecksum, got, want)
	}

	return payload, nil
}
