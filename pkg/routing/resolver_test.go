package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

func TestResolveDefaultWhenNoBindings(t *testing.T) {
	input := models.RouteInput{Channel: "telegram", AccountID: "123"}

	route := Resolve(input, nil)
	assert.Equal(t, DefaultAgentID, route.AgentID)
	assert.Equal(t, "default", route.MatchedBy)
	assert.Equal(t, "agent:default:telegram:123", route.SessionKey)
	assert.Equal(t, "agent:default:main", route.MainSessionKey)
}

func TestResolvePeerBinding(t *testing.T) {
	bindings := []models.AgentBinding{
		{AgentID: "a1", Channel: "discord", Peer: &models.RoutePeer{Kind: "group", ID: "g-42"}},
	}
	input := models.RouteInput{
		Channel:   "discord",
		AccountID: "chan-7",
		Peer:      &models.RoutePeer{Kind: "group", ID: "g-42"},
	}

	route := Resolve(input, bindings)
	assert.Equal(t, "a1", route.AgentID)
	assert.Equal(t, "peer", route.MatchedBy)
	assert.Equal(t, "agent:a1:discord:chan-7", route.SessionKey)

	// A different peer falls through to the default agent.
	input.Peer = &models.RoutePeer{Kind: "group", ID: "other"}
	route = Resolve(input, bindings)
	assert.Equal(t, DefaultAgentID, route.AgentID)
}

func TestResolvePrecedenceWithinBinding(t *testing.T) {
	bindings := []models.AgentBinding{
		{AgentID: "guilded", GuildID: "g-1"},
		{AgentID: "team", TeamID: "t-1"},
		{AgentID: "acct", AccountID: "acc-1"},
		{AgentID: "wild", Channel: "slack"},
	}

	route := Resolve(models.RouteInput{Channel: "slack", AccountID: "acc-1", GuildID: "g-1"}, bindings)
	assert.Equal(t, "guilded", route.AgentID)
	assert.Equal(t, "guild", route.MatchedBy)

	route = Resolve(models.RouteInput{Channel: "slack", AccountID: "acc-1", TeamID: "t-1"}, bindings)
	assert.Equal(t, "team", route.AgentID)

	route = Resolve(models.RouteInput{Channel: "slack", AccountID: "acc-1"}, bindings)
	assert.Equal(t, "acct", route.AgentID)

	route = Resolve(models.RouteInput{Channel: "slack", AccountID: "someone-else"}, bindings)
	assert.Equal(t, "wild", route.AgentID)
	assert.Equal(t, "channel", route.MatchedBy)
}

func TestResolveFirstMatchingBindingWins(t *testing.T) {
	bindings := []models.AgentBinding{
		{AgentID: "first", AccountID: "u-1"},
		{AgentID: "second", AccountID: "u-1"},
	}

	route := Resolve(models.RouteInput{Channel: "cli", AccountID: "u-1"}, bindings)
	assert.Equal(t, "first", route.AgentID)
}

func TestResolveIsPure(t *testing.T) {
	bindings := []models.AgentBinding{{AgentID: "a1", AccountID: "u-1"}}
	input := models.RouteInput{Channel: "telegram", AccountID: "u-1"}

	first := Resolve(input, bindings)
	second := Resolve(input, bindings)
	assert.Equal(t, first, second)
}
