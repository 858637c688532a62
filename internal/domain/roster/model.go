package roster

import (
	"fmt"
	"strconv"
	"strings"
)

// TeamName is a club display name exactly as it is sent to the provider.
type TeamName string

// ShirtNumber keeps the provider's squad number verbatim. An empty number is
// encoded as the JSON number 0.
type ShirtNumber string

func (n ShirtNumber) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(strconv.Quote(string(n))), nil
}

func (n *ShirtNumber) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch raw {
	case "", "null", "0":
		*n = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		value, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("decode shirt number: %w", err)
		}
		*n = ShirtNumber(value)
		return nil
	}
	*n = ShirtNumber(raw)
	return nil
}

// PlayerRecord is one entry of the aggregate roster file.
type PlayerRecord struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Position    string      `json:"position"`
	Team        string      `json:"team"`
	PhotoURL    string      `json:"photoUrl"`
	Nationality string      `json:"nationality"`
	Number      ShirtNumber `json:"number"`
}

func (p PlayerRecord) Validate() error {
	if p.PhotoURL == "" {
		return fmt.Errorf("player photo url is required")
	}
	if !strings.HasSuffix(p.PhotoURL, imageExt) {
		return fmt.Errorf("player photo url must end with %s: %s", imageExt, p.PhotoURL)
	}
	return nil
}
