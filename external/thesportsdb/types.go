package thesportsdb

import (
	"fmt"
	"strconv"
	"strings"
)

type searchPlayersEnvelope struct {
	Player []rawPlayer `json:"player"`
}

// rawPlayer mirrors the provider payload; only the fields the roster needs.
type rawPlayer struct {
	IDPlayer       flexString  `json:"idPlayer"`
	StrPlayer      string      `json:"strPlayer"`
	StrPosition    string      `json:"strPosition"`
	StrTeam        string      `json:"strTeam"`
	StrThumb       string      `json:"strThumb"`
	StrNationality string      `json:"strNationality"`
	StrNumber      squadNumber `json:"strNumber"`
}

// flexString accepts a JSON string, number or null. The provider is not
// consistent about quoting ids and squad numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		value, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		*f = flexString(value)
		return nil
	}
	*f = flexString(raw)
	return nil
}

// squadNumber keeps a quoted number verbatim, whitespace included. Falsy
// values (null, false, numeric zero) become empty; any other bare number keeps
// its literal text.
type squadNumber string

func (n *squadNumber) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch raw {
	case "", "null", "false":
		*n = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		value, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		*n = squadNumber(value)
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("decode squad number %s: %w", raw, err)
	}
	if value == 0 {
		*n = ""
		return nil
	}
	*n = squadNumber(raw)
	return nil
}
