package routing

import (
	"fmt"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// DefaultAgentID is used when no binding matches.
const DefaultAgentID = "default"

// SessionKey derives the deterministic session key for an agent route.
func SessionKey(agentID, channel, accountID string) string {
	return fmt.Sprintf("agent:%s:%s:%s", agentID, channel, accountID)
}

// MainSessionKey names the per-agent shared session.
func MainSessionKey(agentID string) string {
	return fmt.Sprintf("agent:%s:main", agentID)
}

// Resolve evaluates bindings in order and returns the first match. Pure: the
// result depends only on the input and the binding list.
//
// Match precedence per binding: peer, then guild, then team, then account,
// then channel wildcard (a channel-only binding with no peer or account
// filter). When nothing matches, the default agent is selected.
func Resolve(input models.RouteInput, bindings []models.AgentBinding) models.ResolvedRoute {
	for _, b := range bindings {
		if matched, by := matches(input, b); matched {
			return route(b.AgentID, input, by)
		}
	}
	return route(DefaultAgentID, input, "default")
}

func route(agentID string, input models.RouteInput, matchedBy string) models.ResolvedRoute {
	return models.ResolvedRoute{
		AgentID:        agentID,
		Channel:        input.Channel,
		AccountID:      input.AccountID,
		SessionKey:     SessionKey(agentID, input.Channel, input.AccountID),
		MainSessionKey: MainSessionKey(agentID),
		MatchedBy:      matchedBy,
	}
}

func matches(input models.RouteInput, b models.AgentBinding) (bool, string) {
	if b.Peer != nil && input.Peer != nil &&
		b.Peer.Kind == input.Peer.Kind && b.Peer.ID == input.Peer.ID &&
		(b.Channel == "" || b.Channel == input.Channel) {
		return true, "peer"
	}
	if b.GuildID != "" && b.GuildID == input.GuildID {
		return true, "guild"
	}
	if b.TeamID != "" && b.TeamID == input.TeamID {
		return true, "team"
	}
	if b.AccountID != "" && b.AccountID == input.AccountID {
		return true, "account"
	}
	if b.Channel != "" && b.Channel == input.Channel && b.Peer == nil && b.AccountID == "" {
		return true, "channel"
	}
	return false, ""
}
