// Agent decisions. Every tick each agent evaluates its state against the
// shared context and commits to one action; Update then applies it.
package agents

import "fmt"

// ActionKind enumerates what an agent can decide to do in a tick.
type ActionKind uint8

const (
	ActionIdle ActionKind = iota
	ActionRest
	ActionWork
	ActionWorkOvertime
	ActionPurchase
	ActionSocialPurchase
	ActionLeisure
	ActionStressRelief
	ActionAddressNeed
	ActionAdjustPrice
	ActionExpand
	ActionPolicyChange
	ActionEmergencyResponse
	ActionManageLoad
	ActionMaintain
	ActionEmergency
)

var actionNames = [...]string{
	"idle", "rest", "work", "work_overtime", "purchase", "social_purchase",
	"leisure", "stress_relief", "address_need", "adjust_price", "expand",
	"policy_change", "emergency_response", "manage_load", "maintain", "emergency",
}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", k)
}

// MarshalText encodes the action by name.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Decision is what an agent returns from Decide.
type Decision struct {
	Action ActionKind
	Detail string    // human-readable description for the event log
	Outbox []Message // messages to deliver after the agent's task finishes
}

func (d *Decision) send(m Message) {
	d.Outbox = append(d.Outbox, m)
}
