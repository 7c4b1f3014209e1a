package model

import "time"

// MembershipGroup is the per-party roster (the party's chat group).  It is
// created lazily on the first successful join and seeded with the host as a
// zero-ticket member.
type MembershipGroup struct {
	ID        string    // chat_groups.id
	PartyID   string    // chat_groups.party_id (unique)
	Name      string    // chat_groups.name
	IsActive  bool      // chat_groups.is_active
	Members   []Member  // chat_group_members rows
	CreatedAt time.Time // chat_groups.created_at
	UpdatedAt time.Time // chat_groups.updated_at
}

// Member is one roster entry.  Limit is the number of remaining guest
// slots; Guests lists invited user ids.
type Member struct {
	UserID string   // chat_group_members.user_id
	Ticket int      // chat_group_members.ticket
	Limit  int      // chat_group_members.guest_limit
	Guests []string // chat_group_guests.guest_id
}

// Member returns the roster entry for userID.
func (g MembershipGroup) Member(userID string) (Member, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// HasUser reports whether userID is a member or an invited guest.
func (g MembershipGroup) HasUser(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
		for _, guest := range m.Guests {
			if guest == userID {
				return true
			}
		}
	}
	return false
}
