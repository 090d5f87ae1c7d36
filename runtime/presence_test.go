package runtime

import (
	"testing"

	"chat-relay/domain"

	"github.com/stretchr/testify/require"
)

func Test_Profiles_Keep_Join_Order(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetProfile("c1", "alice")
	p.SetProfile("c2", "bob")
	p.SetProfile("c3", "carol")
	p.SetProfile("c1", "alice-renamed")

	profiles := p.Profiles()
	req.Len(profiles, 3)
	req.Equal("alice-renamed", profiles[0].DisplayName)
	req.Equal("bob", profiles[1].DisplayName)
	req.Equal("carol", profiles[2].DisplayName)
}

func Test_ProfilesAmong_Skips_Anonymous_Connections(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetProfile("c1", "alice")
	p.SetProfile("c2", "bob")

	profiles := p.ProfilesAmong(Set{"c1": {}, "c3": {}})
	req.Len(profiles, 1)
	req.Equal("alice", profiles[0].DisplayName)
}

func Test_RemoveProfile_Unknown_Is_NoOp(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetProfile("c1", "alice")
	p.RemoveProfile("c9")
	p.RemoveProfile("c1")
	p.RemoveProfile("c1")

	req.Empty(p.Profiles())
}

func Test_Typing_Is_Scoped_Per_Room_And_Sorted(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetProfile("c1", "zoe")
	p.SetProfile("c2", "alice")
	p.SetTyping("c1", "general", "zoe")
	p.SetTyping("c2", "general", "alice")
	p.SetTyping("c1", "random", "zoe")

	req.Equal([]string{"alice", "zoe"}, p.Typing("general"))
	req.Equal([]string{"zoe"}, p.Typing("random"))

	p.ClearTyping("c1", "general")
	req.Equal([]string{"alice"}, p.Typing("general"))
	req.Equal([]string{"zoe"}, p.Typing("random"))
}

func Test_ClearAllTyping_Returns_Affected_Rooms(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetProfile("c1", "alice")
	p.SetTyping("c1", "general", "alice")
	p.SetTyping("c1", "random", "alice")

	affected := p.ClearAllTyping("c1")
	req.ElementsMatch([]domain.RoomID{"general", "random"}, affected)
	req.Empty(p.Typing("general"))
	req.Empty(p.Typing("random"))

	req.Empty(p.ClearAllTyping("c1"))
}

func Test_SetTyping_Without_Profile_Is_Dropped(t *testing.T) {
	req := require.New(t)
	p := NewPresence()

	p.SetTyping("ghost", "general", "ghost")
	req.Empty(p.Typing("general"))
}
