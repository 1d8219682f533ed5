// Package chat builds the JSON text components shown to clients.
package chat

import "encoding/json"

// Translation keys used by the login and lifecycle paths.
const (
	KeyOutdatedClient = "multiplayer.disconnect.outdated_client"
	KeyOutdatedServer = "multiplayer.disconnect.outdated_server"
	KeyServerShutdown = "multiplayer.disconnect.server_shutdown"
)

// Component is a text component. Either Text or Translate is set.
type Component struct {
	Text      string      `json:"text,omitempty"`
	Translate string      `json:"translate,omitempty"`
	With      []Component `json:"with,omitempty"`
	Color     string      `json:"color,omitempty"`
	Bold      bool        `json:"bold,omitempty"`
	Extra     []Component `json:"extra,omitempty"`
}

// Text returns a plain text component.
func Text(s string) Component {
	return Component{Text: s}
}

// Translate returns a translated component with string arguments.
func Translate(key string, args ...string) Component {
	c := Component{Translate: key}
	for _, a := range args {
		c.With = append(c.With, Text(a))
	}
	return c
}

// JSON encodes c. A plain text component without styling is still
// emitted as an object so clients never see a bare string.
func (c Component) JSON() string {
	if c.Text == "" && c.Translate == "" && len(c.Extra) == 0 {
		return `{"text":""}`
	}
	b, err := json.Marshal(c)
	if err != nil {
		// Component holds only strings, bools and nested components.
		panic("chat: marshal component: " + err.Error())
	}
	return string(b)
}

// String returns the text content without styling, for logs.
func (c Component) String() string {
	s := c.Text
	if c.Translate != "" {
		s = c.Translate
		if len(c.With) > 0 {
			s += "("
			for i, w := range c.With {
				if i > 0 {
					s += ", "
				}
				s += w.String()
			}
			s += ")"
		}
	}
	for _, e := range c.Extra {
		s += e.String()
	}
	return s
}
