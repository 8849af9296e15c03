// Package registry implements agent profiles, the service request lifecycle
// and dispute resolution. A profile advertises capabilities at a base price;
// requests escrow the payment until the provider delivers or a dispute
// decides who gets what.
package registry

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/state"
	"github.com/vitwit/agentfund/types"
)

// RegisterParams carries the payload of RegisterAgent. Owner signs and funds
// the profile's rent.
type RegisterParams struct {
	Owner        solana.PublicKey
	Name         string
	Description  string
	Capabilities []string
	BasePrice    uint64
}

// canonicalizeCapabilities removes duplicate tags, preserving first-seen
// order, and enforces per-tag and list-size limits.
func canonicalizeCapabilities(caps []string) ([]string, error) {
	seen := make(map[string]bool, len(caps))
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if len(c) == 0 || len(c) > types.MaxCapabilityLength {
			return nil, types.Errf(types.ErrCapabilityTooLong, "capability %q must be 1..%d bytes", c, types.MaxCapabilityLength)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) > types.MaxCapabilities {
		return nil, types.Errf(types.ErrCapabilityListTooLarge, "%d capabilities, max %d", len(out), types.MaxCapabilities)
	}
	return out, nil
}

// Register creates the agent profile for the owner. The owner's treasury
// must already exist; the stored treasury address is re-derived, never
// caller-supplied.
func Register(v *state.View, now int64, signers types.SignerSet, p RegisterParams) (*types.AgentProfile, []events.Event, error) {
	if err := signers.Require(p.Owner); err != nil {
		return nil, nil, err
	}
	if len(p.Name) > types.MaxNameLength {
		return nil, nil, types.Errf(types.ErrNameTooLong, "name is %d bytes, max %d", len(p.Name), types.MaxNameLength)
	}
	if len(p.Description) > types.MaxDescriptionLength {
		return nil, nil, types.Errf(types.ErrDescriptionTooLong, "description is %d bytes, max %d", len(p.Description), types.MaxDescriptionLength)
	}
	caps, err := canonicalizeCapabilities(p.Capabilities)
	if err != nil {
		return nil, nil, err
	}

	_, treasAddr, err := v.Treasury(p.Owner)
	if err != nil {
		return nil, nil, err
	}

	addr, bump, err := v.Derive.Agent(p.Owner)
	if err != nil {
		return nil, nil, err
	}
	profile := &types.AgentProfile{
		Owner:        p.Owner,
		Treasury:     treasAddr,
		Bump:         bump,
		Name:         p.Name,
		Description:  p.Description,
		Capabilities: caps,
		BasePrice:    p.BasePrice,
		IsActive:     true,
		RegisteredAt: now,
		LastActiveAt: now,
	}
	data, err := profile.Marshal()
	if err != nil {
		return nil, nil, types.Errf(types.ErrBadSerialization, "encoding profile: %v", err)
	}
	if _, err := v.Tx.Create(addr, len(data), v.Derive.ProgramID(), p.Owner); err != nil {
		return nil, nil, err
	}
	if err := v.Tx.Write(addr, data); err != nil {
		return nil, nil, err
	}

	ev := events.AgentRegistered{
		Agent:        p.Owner,
		DisplayName:  p.Name,
		Capabilities: caps,
		BasePrice:    p.BasePrice,
	}
	return profile, []events.Event{ev}, nil
}

// UpdateParams carries the optional fields of UpdateAgentProfile. Nil fields
// are left untouched.
type UpdateParams struct {
	Owner        solana.PublicKey
	Name         *string
	Description  *string
	Capabilities *[]string
	BasePrice    *uint64
	IsActive     *bool
}

// Update mutates the owner's profile in place. Only the display fields,
// capabilities, base price and active flag can change; last_active_at always
// advances.
func Update(v *state.View, now int64, signers types.SignerSet, p UpdateParams) (*types.AgentProfile, []events.Event, error) {
	if err := signers.Require(p.Owner); err != nil {
		return nil, nil, err
	}

	profile, addr, err := v.Agent(p.Owner)
	if err != nil {
		return nil, nil, err
	}

	if p.Name != nil {
		if len(*p.Name) > types.MaxNameLength {
			return nil, nil, types.Errf(types.ErrNameTooLong, "name is %d bytes, max %d", len(*p.Name), types.MaxNameLength)
		}
		profile.Name = *p.Name
	}
	if p.Description != nil {
		if len(*p.Description) > types.MaxDescriptionLength {
			return nil, nil, types.Errf(types.ErrDescriptionTooLong, "description is %d bytes, max %d", len(*p.Description), types.MaxDescriptionLength)
		}
		profile.Description = *p.Description
	}
	if p.Capabilities != nil {
		caps, err := canonicalizeCapabilities(*p.Capabilities)
		if err != nil {
			return nil, nil, err
		}
		profile.Capabilities = caps
	}
	if p.BasePrice != nil {
		profile.BasePrice = *p.BasePrice
	}
	if p.IsActive != nil {
		profile.IsActive = *p.IsActive
	}
	profile.LastActiveAt = now

	if err := v.SaveAgent(addr, profile); err != nil {
		return nil, nil, err
	}

	ev := events.AgentUpdated{Agent: p.Owner, IsActive: profile.IsActive}
	return profile, []events.Event{ev}, nil
}
