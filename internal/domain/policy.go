package domain

type PolicyActor struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions"`
}

type PolicyInput struct {
	Actor      PolicyActor `json:"actor"`
	Capability Capability  `json:"capability"`
}

type PolicyDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

func NewPolicyInput(actor Actor, capability Capability) PolicyInput {
	return PolicyInput{
		Actor: PolicyActor{
			ID:          actor.ID,
			Role:        actor.Role,
			Permissions: actor.Permissions,
		},
		Capability: capability,
	}
}
