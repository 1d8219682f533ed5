package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrCorruptResponse is wrapped by every parse failure.
var ErrCorruptResponse = errors.New("session: corrupt response")

// TexturesProperty is the only profile property kept.
const TexturesProperty = "textures"

// Textures is the signed skin and cape property.
type Textures struct {
	Value     string
	Signature string
}

// Profile is a verified identity.
type Profile struct {
	ID       uuid.UUID
	Name     string
	Textures *Textures
}

func corrupt(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptResponse, fmt.Sprintf(format, a...))
}

// ParseProfile walks a hasJoined response in document order. Unknown keys
// are skipped. Inside a property, "name" must come before "value" and
// "signature"; a value seen first is rejected rather than buffered.
func ParseProfile(r io.Reader) (Profile, error) {
	var p Profile
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return p, err
	}
	var haveID, haveName bool
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return p, err
		}
		switch key {
		case "id":
			s, err := readString(dec, key)
			if err != nil {
				return p, err
			}
			if len(s) != 32 {
				return p, corrupt("id %q is not 32 hex digits", s)
			}
			if p.ID, err = uuid.Parse(s); err != nil {
				return p, corrupt("id %q: %v", s, err)
			}
			haveID = true
		case "name":
			if p.Name, err = readString(dec, key); err != nil {
				return p, err
			}
			haveName = true
		case "properties":
			if err := readProperties(dec, &p); err != nil {
				return p, err
			}
		default:
			if err := skip(dec); err != nil {
				return p, err
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return p, err
	}
	if !haveID {
		return p, corrupt("missing id")
	}
	if !haveName {
		return p, corrupt("missing name")
	}
	return p, nil
}

func readProperties(dec *json.Decoder, p *Profile) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		var (
			name    string
			named   bool
			capture *Textures
		)
		for dec.More() {
			key, err := readKey(dec)
			if err != nil {
				return err
			}
			switch key {
			case "name":
				if name, err = readString(dec, key); err != nil {
					return err
				}
				named = true
				if name == TexturesProperty {
					capture = &Textures{}
					p.Textures = capture
				}
			case "value", "signature":
				if !named {
					return corrupt("property %s before its name", key)
				}
				s, err := readString(dec, key)
				if err != nil {
					return err
				}
				if capture == nil {
					continue
				}
				if key == "value" {
					capture.Value = s
				} else {
					capture.Signature = s
				}
			default:
				if err := skip(dec); err != nil {
					return err
				}
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	}
	return expectDelim(dec, ']')
}

func token(dec *json.Decoder) (json.Token, error) {
	t, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, corrupt("unexpected end of document")
		}
		return nil, corrupt("%v", err)
	}
	return t, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	t, err := token(dec)
	if err != nil {
		return err
	}
	if d, ok := t.(json.Delim); !ok || d != want {
		return corrupt("expected %q, got %v", want, t)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	t, err := token(dec)
	if err != nil {
		return "", err
	}
	s, ok := t.(string)
	if !ok {
		return "", corrupt("expected key, got %v", t)
	}
	return s, nil
}

func readString(dec *json.Decoder, field string) (string, error) {
	t, err := token(dec)
	if err != nil {
		return "", err
	}
	s, ok := t.(string)
	if !ok {
		return "", corrupt("%s is %T, want string", field, t)
	}
	return s, nil
}

func skip(dec *json.Decoder) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return corrupt("%v", err)
	}
	return nil
}
