package history

import (
	"fmt"
	"strings"

	"github.com/schilling3003/Perplexica/internal/models"
)

// Format renders turns as "role: content" lines, oldest first.
func Format(turns []models.ChatTurn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, turn.Content))
	}
	return strings.Join(lines, "\n")
}

// FromPairs decodes the transport form [["human", "..."], ["assistant", "..."]].
func FromPairs(pairs [][]string) ([]models.ChatTurn, error) {
	turns := make([]models.ChatTurn, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("history entry %d: expected [role, content], got %d elements", i, len(pair))
		}

		role, err := parseRole(pair[0])
		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", i, err)
		}
		turns = append(turns, models.ChatTurn{Role: role, Content: pair[1]})
	}
	return turns, nil
}

// ToPairs is the inverse of FromPairs.
func ToPairs(turns []models.ChatTurn) [][]string {
	pairs := make([][]string, 0, len(turns))
	for _, turn := range turns {
		pairs = append(pairs, []string{string(turn.Role), turn.Content})
	}
	return pairs
}

func parseRole(s string) (models.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "user":
		return models.RoleHuman, nil
	case "assistant", "ai":
		return models.RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
