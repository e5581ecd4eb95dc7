// Package accounts loads the managed game accounts.
package accounts

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"jordanella.com/tapfarm/internal/games"
)

// Proxy is the network egress an account's browser profile must use
type Proxy struct {
	Soft     string `yaml:"soft" json:"soft"`
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     string `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// String renders the proxy without its password
func (p Proxy) String() string {
	return fmt.Sprintf("%s://%s:%s (%s)", p.Type, p.Host, p.Port, p.Soft)
}

// GameLink is one configured game; an empty URL means the game is listed but not linked
type GameLink struct {
	Game games.Game
	URL  string
}

// GameLinks keeps games in the order they appear in the file
type GameLinks []GameLink

// UnmarshalYAML decodes a name → url|null mapping, rejecting unknown game names
func (l *GameLinks) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: games must be a mapping of name to url", node.Line)
	}

	links := make(GameLinks, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		game, err := games.ParseGame(key.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}

		var url *string
		if err := value.Decode(&url); err != nil {
			return fmt.Errorf("line %d: game %s: %w", value.Line, game, err)
		}

		link := GameLink{Game: game}
		if url != nil {
			link.URL = *url
		}
		links = append(links, link)
	}

	*l = links
	return nil
}

// Account is one managed game-playing identity. It is immutable during a cycle.
type Account struct {
	ID       string    `yaml:"id"`
	Username string    `yaml:"username"`
	Active   bool      `yaml:"active"`
	Proxy    Proxy     `yaml:"proxy"`
	Games    GameLinks `yaml:"games"`
}

// Playable returns the games that have a URL, in configured order
func (a *Account) Playable() []GameLink {
	playable := make([]GameLink, 0, len(a.Games))
	for _, link := range a.Games {
		if link.URL != "" {
			playable = append(playable, link)
		}
	}
	return playable
}

// ActiveCount counts active accounts
func ActiveCount(accs []*Account) int {
	n := 0
	for _, a := range accs {
		if a.Active {
			n++
		}
	}
	return n
}
